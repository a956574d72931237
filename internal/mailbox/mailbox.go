// Package mailbox reads a user's messages from the provider, either through
// Microsoft Graph or over IMAP with an OAuth bearer token.
package mailbox

import (
	"context"
	"fmt"
	"time"
)

// Address is a display name plus email address.
type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Summary is one row of a folder listing.
type Summary struct {
	ID             string
	Subject        string
	From           Address
	ReceivedAt     *time.Time
	Preview        string
	HasAttachments bool
	IsRead         bool
}

// Detail is a full message, including its body.
type Detail struct {
	Summary
	To       []Address
	BodyHTML string
	BodyText string
}

// Attachment is attachment metadata as reported by the provider.
type Attachment struct {
	ID          string
	Name        string
	Size        int64
	ContentType string
}

// ListOptions narrows a folder listing.
type ListOptions struct {
	Folder     string
	Days       int
	Sender     string
	UnreadOnly bool
	Limit      int
}

// Mailbox is the read-only view of a provider mailbox used by ingestion.
type Mailbox interface {
	ListMessages(ctx context.Context, opts ListOptions) ([]Summary, error)
	GetDetail(ctx context.Context, messageID string) (*Detail, error)
	ListAttachments(ctx context.Context, messageID string) ([]Attachment, error)
	// GetAttachmentContent resolves an attachment by name. An unknown name
	// yields empty content and no error.
	GetAttachmentContent(ctx context.Context, messageID, name string) ([]byte, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Factory builds a Mailbox for one user. email is the login name for
// backends that need it alongside the token.
type Factory func(email, accessToken string) Mailbox

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// since returns the lower bound of the listing window.
func since(now time.Time, days int) time.Time {
	if days <= 0 {
		days = 7
	}
	return now.UTC().AddDate(0, 0, -days)
}

// attachmentByName returns the id of the first attachment called name.
func attachmentByName(list []Attachment, name string) (string, bool) {
	for _, a := range list {
		if a.Name == name {
			return a.ID, true
		}
	}
	return "", false
}
