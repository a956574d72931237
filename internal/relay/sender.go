// Package relay composes processed messages and hands them to an outbound
// mail transport.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/pysugar/outlook-relay/internal/logging"
)

// Outcome reports a single relay attempt.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Sender composes and relays processed mail. It never returns an error;
// failures are reported in the Outcome.
type Sender struct {
	transport Transport
	from      string
	prefix    string
	log       logging.Logger
	now       func() time.Time
}

func NewSender(transport Transport, from, subjectPrefix string, log logging.Logger) *Sender {
	return &Sender{
		transport: transport,
		from:      from,
		prefix:    subjectPrefix,
		log:       log.WithComponent("relay"),
		now:       time.Now,
	}
}

// Subject returns the relayed subject for an original subject.
func (s *Sender) Subject(original string) string {
	if s.prefix == "" {
		return original
	}
	return strings.TrimSpace(s.prefix + " " + original)
}

func (s *Sender) SendProcessed(ctx context.Context, m ProcessedMail) Outcome {
	raw, skipped, err := Compose(s.from, s.Subject(m.OriginalSubject), m, s.now())
	for _, name := range skipped {
		s.log.Warn("Skipping attachment that is not valid base64", logging.String("attachment", name))
	}
	if err != nil {
		s.log.Error("Failed to compose relay message", err)
		return Outcome{Success: false, Message: "send failed: " + err.Error()}
	}

	if err := s.transport.Send(ctx, s.from, []string{m.To}, raw); err != nil {
		s.log.Warn("Relay failed", logging.Err(err), logging.String("recipient", m.To))
		return Outcome{Success: false, Message: "send failed: " + err.Error()}
	}

	s.log.Info("Relayed message", logging.String("recipient", m.To), logging.Int("attachments", len(m.Attachments)-len(skipped)))
	return Outcome{Success: true, Message: "mail sent"}
}
