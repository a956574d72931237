package models

import "time"

// AttachmentMeta describes one attachment as seen at ingestion time.
// ID is the provider's attachment id, used for direct downloads.
type AttachmentMeta struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Message is a locally persisted copy of a provider message.
// (UserID, ProviderMessageID) is unique: a message is ingested at most once per user.
type Message struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	UserID            uint             `gorm:"uniqueIndex:idx_user_message;not null" json:"user_id"`
	ProviderMessageID string           `gorm:"uniqueIndex:idx_user_message;not null" json:"provider_message_id"`
	Folder            string           `json:"folder"`
	Subject           string           `json:"subject"`
	SenderEmail       string           `json:"sender_email"`
	SenderName        string           `json:"sender_name"`
	ReceivedAt        *time.Time       `gorm:"index" json:"received_at,omitempty"`
	BodyHTML          string           `gorm:"type:text" json:"body_html"`
	BodyText          string           `gorm:"type:text" json:"body_text"`
	HasAttachments    bool             `json:"has_attachments"`
	Attachments       []AttachmentMeta `gorm:"serializer:json;type:text" json:"attachments"`
	IsRead            bool             `json:"is_read"`
	IsProcessed       bool             `gorm:"index" json:"is_processed"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
	ProcessedContent  string           `gorm:"type:text" json:"processed_content"`
	Sent              bool             `gorm:"index" json:"sent"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Sender renders the sender as "Name <email>", or just the address when unnamed.
func (m *Message) Sender() string {
	if m.SenderName == "" {
		return m.SenderEmail
	}
	return m.SenderName + " <" + m.SenderEmail + ">"
}
