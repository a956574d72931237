package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/transform"
)

// configUpdate is a partial update; nil fields are left unchanged.
type configUpdate struct {
	DaysToScrape       *int      `json:"days_to_scrape"`
	Folders            *[]string `json:"folders"`
	SenderFilter       *[]string `json:"sender_filter"`
	KeywordFilter      *[]string `json:"keyword_filter"`
	OnlyUnread         *bool     `json:"only_unread"`
	IncludeAttachments *bool     `json:"include_attachments"`
	Recipient          *string   `json:"recipient"`
	AIEnabled          *bool     `json:"ai_enabled"`
	TransformMode      *string   `json:"transform_mode"`
	TargetLanguage     *string   `json:"target_language"`
	AutoFetch          *bool     `json:"auto_fetch"`
	FetchIntervalHours *int      `json:"fetch_interval_hours"`
}

func invalid(msg string) *apperrors.AppError {
	return apperrors.NewBadRequest(apperrors.ErrCodeValidationFailed, msg)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// apply validates u and copies it onto cfg. cfg is untouched on error.
func (u *configUpdate) apply(cfg *models.UserConfig) *apperrors.AppError {
	next := *cfg

	if u.DaysToScrape != nil {
		if *u.DaysToScrape < 1 || *u.DaysToScrape > 365 {
			return invalid("days_to_scrape must be between 1 and 365")
		}
		next.DaysToScrape = *u.DaysToScrape
	}
	if u.Folders != nil {
		folders := cleanList(*u.Folders)
		if len(folders) == 0 {
			return invalid("folders must name at least one folder")
		}
		next.Folders = folders
	}
	if u.SenderFilter != nil {
		next.SenderFilter = cleanList(*u.SenderFilter)
	}
	if u.KeywordFilter != nil {
		next.KeywordFilter = cleanList(*u.KeywordFilter)
	}
	if u.OnlyUnread != nil {
		next.OnlyUnread = *u.OnlyUnread
	}
	if u.IncludeAttachments != nil {
		next.IncludeAttachments = *u.IncludeAttachments
	}
	if u.Recipient != nil {
		recipient := strings.TrimSpace(*u.Recipient)
		if recipient != "" {
			addr, err := mail.ParseAddress(recipient)
			if err != nil {
				return apperrors.NewBadRequest(apperrors.ErrCodeInvalidEmail, "recipient is not a valid email address")
			}
			recipient = addr.Address
		}
		next.Recipient = recipient
	}
	if u.AIEnabled != nil {
		next.AIEnabled = *u.AIEnabled
	}
	if u.TransformMode != nil {
		mode, err := transform.ParseMode(*u.TransformMode)
		if err != nil {
			return invalid("transform_mode must be one of summarize, translate, none")
		}
		next.TransformMode = string(mode)
	}
	if u.TargetLanguage != nil {
		lang := strings.TrimSpace(*u.TargetLanguage)
		if lang == "" {
			return invalid("target_language must not be empty")
		}
		next.TargetLanguage = lang
	}
	if u.AutoFetch != nil {
		next.AutoFetch = *u.AutoFetch
	}
	if u.FetchIntervalHours != nil {
		if *u.FetchIntervalHours < 1 {
			return invalid("fetch_interval_hours must be at least 1")
		}
		next.FetchIntervalHours = *u.FetchIntervalHours
	}

	*cfg = next
	return nil
}

// GetConfigHandler handles GET /api/config
func GetConfigHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		cfg, err := db.GetOrCreateConfig(database, user.ID)
		if err != nil {
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load configuration", err))
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// UpdateConfigHandler handles PUT /api/config
func UpdateConfigHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())

		var update configUpdate
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&update); err != nil {
			apperrors.Write(w, r, apperrors.NewBadRequest(apperrors.ErrCodeInvalidInput, "Invalid JSON body").WithDetail(err.Error()))
			return
		}

		cfg, err := db.GetOrCreateConfig(database, user.ID)
		if err != nil {
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load configuration", err))
			return
		}
		if appErr := update.apply(cfg); appErr != nil {
			apperrors.Write(w, r, appErr)
			return
		}
		if err := db.SaveConfig(database, cfg); err != nil {
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to save configuration", err))
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}
