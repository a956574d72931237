package models

import "time"

// Session is a server-side web session. Data is a JSON object of string values.
type Session struct {
	ID        string            `gorm:"primaryKey"`
	Data      map[string]string `gorm:"serializer:json;type:text"`
	ExpiresAt time.Time         `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
