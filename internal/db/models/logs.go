package models

import "time"

// Log status values.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Fetch triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// SendLog is an append-only record of one relay attempt.
type SendLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	MessageID    *uint     `json:"message_id,omitempty"`
	Recipient    string    `json:"recipient"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// FetchLog records one fetch pass. It is created as running and finalized in place.
type FetchLog struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"index;not null" json:"user_id"`
	Trigger      string     `json:"trigger"`
	TotalEmails  int        `json:"total_emails"`
	NewEmails    int        `json:"new_emails"`
	Status       string     `json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
