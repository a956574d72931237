package db

import (
	"time"

	"github.com/pysugar/outlook-relay/internal/db/models"
	"gorm.io/gorm"
)

// StartFetchLog creates a running FetchLog row.
func StartFetchLog(database *gorm.DB, userID uint, trigger string) (*models.FetchLog, error) {
	entry := &models.FetchLog{UserID: userID, Trigger: trigger, Status: models.StatusRunning}
	if err := database.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// FinishFetchLog finalizes a FetchLog in place. A nil fetchErr marks success.
func FinishFetchLog(database *gorm.DB, entry *models.FetchLog, total, fresh int, fetchErr error, at time.Time) error {
	entry.TotalEmails = total
	entry.NewEmails = fresh
	entry.FinishedAt = &at
	entry.Status = models.StatusSuccess
	entry.ErrorMessage = ""
	if fetchErr != nil {
		entry.Status = models.StatusFailed
		entry.ErrorMessage = fetchErr.Error()
	}
	return database.Save(entry).Error
}

// CreateSendLog appends a relay attempt record.
func CreateSendLog(database *gorm.DB, entry *models.SendLog) error {
	return database.Create(entry).Error
}

// RecentFetchLogs returns the newest fetch logs for a user.
func RecentFetchLogs(database *gorm.DB, userID uint, limit int) ([]models.FetchLog, error) {
	var logs []models.FetchLog
	err := database.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// RecentSendLogs returns the newest send logs for a user.
func RecentSendLogs(database *gorm.DB, userID uint, limit int) ([]models.SendLog, error) {
	var logs []models.SendLog
	err := database.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
