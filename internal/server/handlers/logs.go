package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth"
	"github.com/pysugar/outlook-relay/internal/db"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

// LogsHandler handles GET /api/logs?kind=fetch|send&limit
func LogsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())

		limit, err := intQuery(r, "limit", defaultLogLimit)
		if err != nil {
			apperrors.Write(w, r, err)
			return
		}
		if limit == 0 || limit > maxLogLimit {
			limit = maxLogLimit
		}

		kind := r.URL.Query().Get("kind")
		if kind != "" && kind != "fetch" && kind != "send" {
			apperrors.Write(w, r, apperrors.NewBadRequest(apperrors.ErrCodeInvalidInput, "kind must be fetch or send"))
			return
		}

		resp := map[string]interface{}{}
		if kind == "" || kind == "fetch" {
			logs, err := db.RecentFetchLogs(database, user.ID, limit)
			if err != nil {
				apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load fetch logs", err))
				return
			}
			resp["fetch_logs"] = logs
		}
		if kind == "" || kind == "send" {
			logs, err := db.RecentSendLogs(database, user.ID, limit)
			if err != nil {
				apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load send logs", err))
				return
			}
			resp["send_logs"] = logs
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
