package models

import "time"

// User is a mailbox owner who authorized the relay. Tokens are stored as
// vault ciphertext, never plaintext.
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	Name           string     `json:"name"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TokenExpired reports whether the stored access token is past its expiry.
// A missing expiry counts as expired.
func (u *User) TokenExpired(now time.Time) bool {
	return u.TokenExpiresAt == nil || !now.Before(*u.TokenExpiresAt)
}
