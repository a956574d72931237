package db

import (
	"time"

	"github.com/pysugar/outlook-relay/internal/db/models"
	"gorm.io/gorm"
)

// TokenSet is the ciphertext form of an OAuth grant, ready to persist.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// UpsertUser inserts or updates the user identified by email with fresh tokens.
// An empty refresh token keeps the stored one. created reports a first login.
// IsActive is only set for new users; a disabled account stays disabled.
func UpsertUser(database *gorm.DB, email, name string, tokens TokenSet, now time.Time) (user *models.User, created bool, err error) {
	var existing models.User
	err = database.Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
	case IsNotFound(err):
		existing = models.User{Email: email, IsActive: true}
		created = true
	default:
		return nil, false, err
	}

	if name != "" {
		existing.Name = name
	}
	existing.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		existing.RefreshToken = tokens.RefreshToken
	}
	expiresAt := tokens.ExpiresAt
	existing.TokenExpiresAt = &expiresAt
	existing.LastLogin = &now

	if err := database.Save(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, created, nil
}

// SaveTokens persists refreshed tokens for a user.
func SaveTokens(database *gorm.DB, user *models.User, tokens TokenSet) error {
	user.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		user.RefreshToken = tokens.RefreshToken
	}
	expiresAt := tokens.ExpiresAt
	user.TokenExpiresAt = &expiresAt
	return database.Model(user).Updates(map[string]interface{}{
		"access_token":     user.AccessToken,
		"refresh_token":    user.RefreshToken,
		"token_expires_at": user.TokenExpiresAt,
	}).Error
}

// GetActiveUser loads an active user by id.
func GetActiveUser(database *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := database.Where("id = ? AND is_active = ?", id, true).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetConfig returns the user's config, or gorm.ErrRecordNotFound.
func GetConfig(database *gorm.DB, userID uint) (*models.UserConfig, error) {
	var cfg models.UserConfig
	if err := database.Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetOrCreateConfig returns the user's config, creating the defaults on first use.
func GetOrCreateConfig(database *gorm.DB, userID uint) (*models.UserConfig, error) {
	cfg, err := GetConfig(database, userID)
	if err == nil {
		return cfg, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	created := models.DefaultUserConfig(userID)
	if err := database.Create(&created).Error; err != nil {
		if IsDuplicateKey(err) {
			return GetConfig(database, userID)
		}
		return nil, err
	}
	return &created, nil
}

// SaveConfig writes every config column, including zero values.
func SaveConfig(database *gorm.DB, cfg *models.UserConfig) error {
	return database.Save(cfg).Error
}

// DueAutoFetchConfigs returns configs of active users whose auto-fetch interval elapsed.
func DueAutoFetchConfigs(database *gorm.DB, now time.Time) ([]models.UserConfig, error) {
	var candidates []models.UserConfig
	activeUsers := database.Model(&models.User{}).Select("id").Where("is_active = ?", true)
	err := database.
		Where("auto_fetch = ? AND user_id IN (?)", true, activeUsers).
		Order("user_id").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	due := candidates[:0]
	for _, c := range candidates {
		if c.AutoFetchDue(now) {
			due = append(due, c)
		}
	}
	return due, nil
}

// MarkAutoRun stamps the last scheduler run for a user.
func MarkAutoRun(database *gorm.DB, userID uint, at time.Time) error {
	return database.Model(&models.UserConfig{}).
		Where("user_id = ?", userID).
		Update("last_auto_run_at", at).Error
}
