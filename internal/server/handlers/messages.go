package handlers

import (
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/util"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	previewLength    = 200
)

type messageView struct {
	ID             uint       `json:"id"`
	Folder         string     `json:"folder"`
	Subject        string     `json:"subject"`
	SenderEmail    string     `json:"sender_email"`
	SenderName     string     `json:"sender_name"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
	BodyPreview    string     `json:"body_preview"`
	HasAttachments bool       `json:"has_attachments"`
	IsProcessed    bool       `json:"is_processed"`
	Sent           bool       `json:"sent"`
}

func newMessageView(m *models.Message) messageView {
	return messageView{
		ID:             m.ID,
		Folder:         m.Folder,
		Subject:        m.Subject,
		SenderEmail:    m.SenderEmail,
		SenderName:     m.SenderName,
		ReceivedAt:     m.ReceivedAt,
		BodyPreview:    util.Truncate(m.BodyText, previewLength),
		HasAttachments: m.HasAttachments,
		IsProcessed:    m.IsProcessed,
		Sent:           m.Sent,
	}
}

// ListMessagesHandler handles GET /api/messages?skip&limit
func ListMessagesHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())

		skip, err := intQuery(r, "skip", 0)
		if err != nil {
			apperrors.Write(w, r, err)
			return
		}
		limit, err := intQuery(r, "limit", defaultPageLimit)
		if err != nil {
			apperrors.Write(w, r, err)
			return
		}
		if limit == 0 || limit > maxPageLimit {
			limit = maxPageLimit
		}

		msgs, total, err := db.ListMessages(database, user.ID, skip, limit)
		if err != nil {
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to list messages", err))
			return
		}

		views := make([]messageView, 0, len(msgs))
		for i := range msgs {
			views = append(views, newMessageView(&msgs[i]))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"messages": views,
			"total":    total,
			"skip":     skip,
			"limit":    limit,
		})
	}
}

// GetMessageHandler handles GET /api/messages/{id}
func GetMessageHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		id, err := idParam(r)
		if err != nil {
			apperrors.Write(w, r, err)
			return
		}

		msg, err := db.GetMessage(database, user.ID, id)
		if err != nil {
			if db.IsNotFound(err) {
				apperrors.Write(w, r, apperrors.NewNotFound(apperrors.ErrCodeMessageNotFound, "Message not found"))
				return
			}
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load message", err))
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// DeleteMessageHandler handles DELETE /api/messages/{id}
func DeleteMessageHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFromContext(r.Context())
		id, err := idParam(r)
		if err != nil {
			apperrors.Write(w, r, err)
			return
		}

		if err := db.DeleteMessage(database, user.ID, id); err != nil {
			if db.IsNotFound(err) {
				apperrors.Write(w, r, apperrors.NewNotFound(apperrors.ErrCodeMessageNotFound, "Message not found"))
				return
			}
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to delete message", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted"})
	}
}
