package models

import "time"

// Transform modes stored on UserConfig.
const (
	ModeSummarize = "summarize"
	ModeTranslate = "translate"
	ModeNone      = "none"
)

// UserConfig holds one user's scraping and relay preferences.
type UserConfig struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	DaysToScrape       int        `gorm:"default:7" json:"days_to_scrape"`
	Folders            []string   `gorm:"serializer:json;type:text" json:"folders"`
	SenderFilter       []string   `gorm:"serializer:json;type:text" json:"sender_filter"`
	KeywordFilter      []string   `gorm:"serializer:json;type:text" json:"keyword_filter"`
	OnlyUnread         bool       `json:"only_unread"`
	IncludeAttachments bool       `json:"include_attachments"`
	Recipient          string     `json:"recipient"`
	AIEnabled          bool       `json:"ai_enabled"`
	TransformMode      string     `gorm:"default:summarize" json:"transform_mode"`
	TargetLanguage     string     `gorm:"default:zh" json:"target_language"`
	AutoFetch          bool       `json:"auto_fetch"`
	FetchIntervalHours int        `gorm:"default:24" json:"fetch_interval_hours"`
	LastAutoRunAt      *time.Time `json:"last_auto_run_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DefaultUserConfig returns the configuration a new user starts with.
func DefaultUserConfig(userID uint) UserConfig {
	return UserConfig{
		UserID:             userID,
		DaysToScrape:       7,
		Folders:            []string{"Inbox"},
		SenderFilter:       []string{},
		KeywordFilter:      []string{},
		OnlyUnread:         false,
		IncludeAttachments: true,
		AIEnabled:          true,
		TransformMode:      ModeSummarize,
		TargetLanguage:     "zh",
		AutoFetch:          false,
		FetchIntervalHours: 24,
	}
}

// AutoFetchDue reports whether the scheduler should run for this config at now.
func (c *UserConfig) AutoFetchDue(now time.Time) bool {
	if !c.AutoFetch {
		return false
	}
	if c.LastAutoRunAt == nil {
		return true
	}
	interval := time.Duration(c.FetchIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return !now.Before(c.LastAutoRunAt.Add(interval))
}
