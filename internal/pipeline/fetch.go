package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/mailbox"
)

// FolderResult is the outcome of listing one folder.
type FolderResult struct {
	Folder string `json:"folder"`
	Listed int    `json:"listed"`
	New    int    `json:"new"`
	Error  string `json:"error,omitempty"`
}

// FetchReport summarizes a fetch pass.
type FetchReport struct {
	Total   int            `json:"total"`
	New     int            `json:"new"`
	Folders []FolderResult `json:"folders"`
}

// Fetch lists each configured folder and stores messages not seen before.
// A failing folder is recorded and the pass moves on; storage errors abort it.
func (p *Pipeline) Fetch(ctx context.Context, user *models.User, cfg *models.UserConfig, trigger string) (*FetchReport, error) {
	if cfg == nil {
		return nil, ErrNoConfig
	}
	log := p.log.WithUserID(user.ID).WithFields(logging.String("trigger", trigger))

	entry, err := db.StartFetchLog(p.db, user.ID, trigger)
	if err != nil {
		return nil, fmt.Errorf("start fetch log: %w", err)
	}

	report, err := p.fetch(ctx, user, cfg, log)
	total, fresh := 0, 0
	if report != nil {
		total, fresh = report.Total, report.New
	}
	if ferr := db.FinishFetchLog(p.db, entry, total, fresh, err, p.now().UTC()); ferr != nil {
		log.Error("Failed to finalize fetch log", ferr)
	}
	if err != nil {
		log.Warn("Fetch pass failed", logging.Err(err))
		return nil, err
	}

	log.Info("Fetch pass complete", logging.Int("total", total), logging.Int("new", fresh))
	return report, nil
}

func (p *Pipeline) fetch(ctx context.Context, user *models.User, cfg *models.UserConfig, log logging.Logger) (*FetchReport, error) {
	box, err := p.mailboxFor(ctx, user)
	if err != nil {
		return nil, err
	}

	opts := mailbox.ListOptions{
		Days:       cfg.DaysToScrape,
		UnreadOnly: cfg.OnlyUnread,
		Limit:      p.pageSize,
	}
	if len(cfg.SenderFilter) > 0 {
		opts.Sender = strings.TrimSpace(cfg.SenderFilter[0])
	}
	keywords := normalizeKeywords(cfg.KeywordFilter)

	report := &FetchReport{Folders: make([]FolderResult, 0, len(cfg.Folders))}
	for _, folder := range cfg.Folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opts.Folder = folder
		result, err := p.fetchFolder(ctx, box, user, cfg, opts, keywords, log.WithFields(logging.Folder(folder)))
		report.Total += result.Listed
		report.New += result.New
		report.Folders = append(report.Folders, result)
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

// fetchFolder returns a non-nil error only for failures that must abort the pass.
func (p *Pipeline) fetchFolder(ctx context.Context, box mailbox.Mailbox, user *models.User, cfg *models.UserConfig, opts mailbox.ListOptions, keywords []string, log logging.Logger) (FolderResult, error) {
	result := FolderResult{Folder: opts.Folder}

	summaries, err := box.ListMessages(ctx, opts)
	if err != nil {
		log.Warn("Failed to list folder", logging.Err(err))
		result.Error = err.Error()
		return result, nil
	}

	result.Listed = len(summaries)
	for _, s := range summaries {
		if !matchesKeywords(s, keywords) {
			continue
		}

		exists, err := db.MessageExists(p.db, user.ID, s.ID)
		if err != nil {
			return result, fmt.Errorf("check message: %w", err)
		}
		if exists {
			continue
		}

		detail, err := box.GetDetail(ctx, s.ID)
		if err != nil {
			log.Warn("Failed to load message, skipping rest of folder", logging.Err(err), logging.MessageID(s.ID))
			result.Error = err.Error()
			return result, nil
		}

		msg := newMessage(user.ID, opts.Folder, s.ID, detail)
		if cfg.IncludeAttachments && detail.HasAttachments {
			msg.Attachments = p.attachmentMeta(ctx, box, s.ID, log)
		}

		if err := db.CreateMessage(p.db, msg); err != nil {
			if db.IsDuplicateKey(err) {
				return result, fmt.Errorf("message %s stored concurrently: %w", s.ID, err)
			}
			return result, fmt.Errorf("store message: %w", err)
		}
		result.New++
	}
	return result, nil
}

func (p *Pipeline) attachmentMeta(ctx context.Context, box mailbox.Mailbox, messageID string, log logging.Logger) []models.AttachmentMeta {
	list, err := box.ListAttachments(ctx, messageID)
	if err != nil {
		log.Warn("Failed to list attachments", logging.Err(err), logging.MessageID(messageID))
		return []models.AttachmentMeta{}
	}
	metas := make([]models.AttachmentMeta, 0, len(list))
	for _, a := range list {
		metas = append(metas, models.AttachmentMeta{
			ID:          a.ID,
			Name:        a.Name,
			Size:        a.Size,
			ContentType: a.ContentType,
		})
	}
	return metas
}

func newMessage(userID uint, folder, providerID string, d *mailbox.Detail) *models.Message {
	return &models.Message{
		UserID:            userID,
		ProviderMessageID: providerID,
		Folder:            folder,
		Subject:           d.Subject,
		SenderEmail:       d.From.Address,
		SenderName:        d.From.Name,
		ReceivedAt:        d.ReceivedAt,
		BodyHTML:          d.BodyHTML,
		BodyText:          d.BodyText,
		HasAttachments:    d.HasAttachments,
		Attachments:       []models.AttachmentMeta{},
		IsRead:            d.IsRead,
	}
}

func normalizeKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// matchesKeywords reports whether the subject or preview contains any keyword.
// An empty keyword list matches everything.
func matchesKeywords(s mailbox.Summary, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(s.Subject + "\n" + s.Preview)
	for _, k := range keywords {
		if strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}
