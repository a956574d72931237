// Package transform rewrites message bodies before relay: summarize,
// translate, or pass through. It never fails; backend problems fall back to
// deterministic output.
package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/util"
)

// Mode selects the rewrite applied to a body.
type Mode string

const (
	ModeSummarize Mode = "summarize"
	ModeTranslate Mode = "translate"
	ModeNone      Mode = "none"
)

// ParseMode validates a stored or user-supplied mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSummarize, ModeTranslate, ModeNone:
		return m, nil
	default:
		return "", fmt.Errorf("unknown transform mode %q", s)
	}
}

const (
	summaryTemperature   = 0.3
	translateTemperature = 0.3
)

// Options configures a Transformer.
type Options struct {
	SummaryMaxLength int
	SummaryTimeout   time.Duration
	TranslateTimeout time.Duration
	Languages        Languages
}

// Transformer applies a Mode to text using an optional text backend.
type Transformer struct {
	provider *Provider
	opts     Options
	log      logging.Logger
}

func New(provider *Provider, opts Options, log logging.Logger) *Transformer {
	if opts.SummaryMaxLength <= 0 {
		opts.SummaryMaxLength = 200
	}
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = 30 * time.Second
	}
	if opts.TranslateTimeout <= 0 {
		opts.TranslateTimeout = 60 * time.Second
	}
	if opts.Languages == nil {
		opts.Languages = Languages{}
	}
	return &Transformer{provider: provider, opts: opts, log: log.WithComponent("transform")}
}

// Transform rewrites text according to mode. Unknown or empty modes pass text through.
func (t *Transformer) Transform(ctx context.Context, text string, mode Mode, targetLanguage string) string {
	switch mode {
	case ModeSummarize:
		return t.Summarize(ctx, text)
	case ModeTranslate:
		return t.Translate(ctx, text, targetLanguage)
	default:
		return text
	}
}

// Summarize condenses text. Without a usable backend the result is the first
// SummaryMaxLength characters followed by "..." when text is longer.
func (t *Transformer) Summarize(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}
	fallback := util.Truncate(text, t.opts.SummaryMaxLength)
	if !t.provider.IsEnabled() {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.SummaryTimeout)
	defer cancel()

	n := t.opts.SummaryMaxLength
	system := "You are an email assistant who extracts the key information from messages."
	user := fmt.Sprintf("Summarize the following email, keeping the key facts, in at most %d characters:\n\n%s\n\nSummary:", n, text)

	summary, err := t.provider.Complete(ctx, system, user, 2*n, summaryTemperature)
	if err != nil {
		t.log.Warn("Summarize failed, using truncation", logging.Err(err))
		return fallback
	}
	return summary
}

// Translate renders text in targetLanguage. Without a usable backend text is
// returned unchanged.
func (t *Transformer) Translate(ctx context.Context, text, targetLanguage string) string {
	if text == "" {
		return ""
	}
	if !t.provider.IsEnabled() {
		return text
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.TranslateTimeout)
	defer cancel()

	name := t.opts.Languages.Name(targetLanguage)
	system := fmt.Sprintf("You are a professional email translator who translates messages into %s.", name)
	user := fmt.Sprintf("Translate the following email into %s, keeping it accurate and professional:\n\n%s\n\n%s translation:", name, text, name)

	translated, err := t.provider.Complete(ctx, system, user, 0, translateTemperature)
	if err != nil {
		t.log.Warn("Translate failed, returning original text", logging.Err(err), logging.String("language", targetLanguage))
		return text
	}
	return translated
}
