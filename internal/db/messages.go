package db

import (
	"time"

	"github.com/pysugar/outlook-relay/internal/db/models"
	"gorm.io/gorm"
)

// MessageExists reports whether the provider message was already ingested for the user.
func MessageExists(database *gorm.DB, userID uint, providerID string) (bool, error) {
	var count int64
	err := database.Model(&models.Message{}).
		Where("user_id = ? AND provider_message_id = ?", userID, providerID).
		Count(&count).Error
	return count > 0, err
}

// CreateMessage inserts a newly ingested message.
func CreateMessage(database *gorm.DB, msg *models.Message) error {
	return database.Create(msg).Error
}

// PendingMessages returns messages not yet processed nor sent, oldest row first.
func PendingMessages(database *gorm.DB, userID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := database.
		Where("user_id = ? AND is_processed = ? AND sent = ?", userID, false, false).
		Order("id").
		Find(&msgs).Error
	return msgs, err
}

// ListMessages pages through a user's messages, newest received first.
func ListMessages(database *gorm.DB, userID uint, skip, limit int) ([]models.Message, int64, error) {
	var total int64
	if err := database.Model(&models.Message{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var msgs []models.Message
	err := database.
		Where("user_id = ?", userID).
		Order("received_at DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&msgs).Error
	return msgs, total, err
}

// GetMessage loads a message owned by the user.
func GetMessage(database *gorm.DB, userID, id uint) (*models.Message, error) {
	var msg models.Message
	if err := database.Where("id = ? AND user_id = ?", id, userID).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message owned by the user. It returns
// gorm.ErrRecordNotFound when nothing matched.
func DeleteMessage(database *gorm.DB, userID, id uint) error {
	res := database.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkProcessed stores the transformed content.
func MarkProcessed(database *gorm.DB, msg *models.Message, content string, at time.Time) error {
	msg.IsProcessed = true
	msg.ProcessedAt = &at
	msg.ProcessedContent = content
	return database.Model(msg).Updates(map[string]interface{}{
		"is_processed":      true,
		"processed_at":      at,
		"processed_content": content,
	}).Error
}

// MarkSent flags a processed message as relayed.
func MarkSent(database *gorm.DB, msg *models.Message, at time.Time) error {
	msg.Sent = true
	msg.SentAt = &at
	return database.Model(msg).Updates(map[string]interface{}{
		"sent":    true,
		"sent_at": at,
	}).Error
}

// MessageCounts summarizes a user's store for the dashboard.
type MessageCounts struct {
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
	Sent      int64 `json:"sent"`
}

// CountMessages returns total, processed and sent counts for a user.
func CountMessages(database *gorm.DB, userID uint) (MessageCounts, error) {
	var c MessageCounts
	base := func() *gorm.DB { return database.Model(&models.Message{}).Where("user_id = ?", userID) }
	if err := base().Count(&c.Total).Error; err != nil {
		return c, err
	}
	if err := base().Where("is_processed = ?", true).Count(&c.Processed).Error; err != nil {
		return c, err
	}
	if err := base().Where("sent = ?", true).Count(&c.Sent).Error; err != nil {
		return c, err
	}
	return c, nil
}
