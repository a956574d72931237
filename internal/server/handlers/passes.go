package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth"
	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/pipeline"
)

func loadConfig(database *gorm.DB, userID uint) (*models.UserConfig, error) {
	cfg, err := db.GetConfig(database, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.NewBadRequest(apperrors.ErrCodeConfigNotFound, "Please configure settings first")
		}
		return nil, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load configuration", err)
	}
	return cfg, nil
}

// FetchHandler handles POST /api/fetch
func FetchHandler(database *gorm.DB, passes Passes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		cfg, err := loadConfig(database, user.ID)
		if err != nil {
			apperrors.Write(w, r, err)
			return
		}

		report, err := passes.Fetch(r.Context(), user, cfg, models.TriggerManual)
		if err != nil {
			if errors.Is(err, token.ErrReauthRequired) {
				apperrors.Write(w, r, apperrors.NewUnauthorized(apperrors.ErrCodeTokenExpired, "Token expired, please sign in again"))
				return
			}
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeFetchFailed, "Fetch failed", err).WithDetail(err.Error()))
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": fmt.Sprintf("Fetched %d new messages", report.New),
			"total":   report.Total,
			"new":     report.New,
			"folders": report.Folders,
		})
	}
}

// ProcessHandler handles POST /api/process
func ProcessHandler(database *gorm.DB, passes Passes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		cfg, err := loadConfig(database, user.ID)
		if err != nil {
			apperrors.Write(w, r, err)
			return
		}

		report, err := passes.Process(r.Context(), user, cfg)
		if err != nil {
			if errors.Is(err, pipeline.ErrNoRecipient) {
				apperrors.Write(w, r, apperrors.NewBadRequest(apperrors.ErrCodeMissingField, "Please configure a relay recipient"))
				return
			}
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeProcessFailed, "Process failed", err).WithDetail(err.Error()))
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":   fmt.Sprintf("Processed %d, sent %d", report.Processed, report.Sent),
			"total":     report.Total,
			"processed": report.Processed,
			"sent":      report.Sent,
			"errors":    report.Errors,
		})
	}
}
