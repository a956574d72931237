package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/mailbox"
	"github.com/pysugar/outlook-relay/internal/relay"
	"github.com/pysugar/outlook-relay/internal/transform"
)

// ItemResult records a message that could not be relayed.
type ItemResult struct {
	MessageID uint   `json:"message_id"`
	Error     string `json:"error"`
}

// ProcessReport summarizes a process pass.
type ProcessReport struct {
	Total     int          `json:"total"`
	Processed int          `json:"processed"`
	Sent      int          `json:"sent"`
	Errors    []ItemResult `json:"errors"`
}

// Process transforms and relays every pending message, oldest first.
// Per-message failures are reported, not returned.
func (p *Pipeline) Process(ctx context.Context, user *models.User, cfg *models.UserConfig) (*ProcessReport, error) {
	if cfg == nil {
		return nil, ErrNoConfig
	}
	recipient := strings.TrimSpace(cfg.Recipient)
	if recipient == "" {
		return nil, ErrNoRecipient
	}
	log := p.log.WithUserID(user.ID)

	pending, err := db.PendingMessages(p.db, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load pending messages: %w", err)
	}

	mode := transform.ModeNone
	if cfg.AIEnabled {
		mode = transform.Mode(cfg.TransformMode)
	}
	includeOriginal := transform.Mode(cfg.TransformMode) != transform.ModeNone

	report := &ProcessReport{Total: len(pending), Errors: []ItemResult{}}
	attachments := &attachmentLoader{p: p, user: user, log: log}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		msg := &pending[i]
		msgLog := log.WithFields(logging.Int("message_id", int(msg.ID)))

		content := msg.BodyText
		if content == "" {
			content = msg.BodyHTML
		}
		processed := p.transformer.Transform(ctx, content, mode, cfg.TargetLanguage)

		if err := db.MarkProcessed(p.db, msg, processed, p.now().UTC()); err != nil {
			msgLog.Error("Failed to store processed content", err)
			reason := "store processed content: " + err.Error()
			p.writeSendLog(msgLog, user.ID, msg, recipient, reason)
			report.Errors = append(report.Errors, ItemResult{MessageID: msg.ID, Error: reason})
			continue
		}
		report.Processed++

		out := relay.ProcessedMail{
			To:               recipient,
			OriginalSubject:  msg.Subject,
			OriginalSender:   msg.Sender(),
			OriginalDate:     msg.ReceivedAt,
			ProcessedContent: processed,
		}
		if includeOriginal {
			out.OriginalBody = msg.BodyText
		}
		if cfg.IncludeAttachments && msg.HasAttachments {
			out.Attachments = attachments.load(ctx, msg)
		}

		outcome := p.sender.SendProcessed(ctx, out)
		failure := ""
		if !outcome.Success {
			failure = outcome.Message
		}
		p.writeSendLog(msgLog, user.ID, msg, recipient, failure)

		if !outcome.Success {
			report.Errors = append(report.Errors, ItemResult{MessageID: msg.ID, Error: outcome.Message})
			continue
		}
		if err := db.MarkSent(p.db, msg, p.now().UTC()); err != nil {
			msgLog.Error("Failed to mark message sent", err)
			report.Errors = append(report.Errors, ItemResult{MessageID: msg.ID, Error: "mark sent: " + err.Error()})
			continue
		}
		report.Sent++
	}

	log.Info("Process pass complete",
		logging.Int("total", report.Total),
		logging.Int("processed", report.Processed),
		logging.Int("sent", report.Sent),
		logging.Int("errors", len(report.Errors)))
	return report, nil
}

// writeSendLog records one relay attempt. An empty failure means success.
func (p *Pipeline) writeSendLog(log logging.Logger, userID uint, msg *models.Message, recipient, failure string) {
	entry := &models.SendLog{
		UserID:    userID,
		MessageID: &msg.ID,
		Recipient: recipient,
		Subject:   p.sender.Subject(msg.Subject),
		Status:    models.StatusSuccess,
	}
	if failure != "" {
		entry.Status = models.StatusFailed
		entry.ErrorMessage = failure
	}
	if err := db.CreateSendLog(p.db, entry); err != nil {
		log.Error("Failed to write send log", err)
	}
}

// attachmentLoader opens the mailbox on first use and downloads attachments
// best-effort.
type attachmentLoader struct {
	p      *Pipeline
	user   *models.User
	log    logging.Logger
	box    mailbox.Mailbox
	opened bool
}

func (l *attachmentLoader) load(ctx context.Context, msg *models.Message) []relay.Attachment {
	if !l.opened {
		l.opened = true
		box, err := l.p.mailboxFor(ctx, l.user)
		if err != nil {
			l.log.Warn("Mailbox unavailable, relaying without attachments", logging.Err(err))
		}
		l.box = box
	}
	if l.box == nil {
		return nil
	}

	var out []relay.Attachment
	for _, meta := range msg.Attachments {
		var (
			content []byte
			err     error
		)
		if meta.ID != "" {
			content, err = l.box.GetAttachment(ctx, msg.ProviderMessageID, meta.ID)
		} else {
			content, err = l.box.GetAttachmentContent(ctx, msg.ProviderMessageID, meta.Name)
		}
		if err != nil {
			l.log.Warn("Failed to download attachment", logging.Err(err), logging.String("attachment", meta.Name))
			continue
		}
		if len(content) == 0 {
			continue
		}
		contentType := meta.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		out = append(out, relay.Attachment{
			Name:        meta.Name,
			ContentType: contentType,
			Content:     base64.StdEncoding.EncodeToString(content),
		})
	}
	return out
}
