// Package handlers holds the HTTP handlers for pages and the JSON API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/pipeline"
)

// Passes runs the ingestion passes for a signed-in user.
type Passes interface {
	Fetch(ctx context.Context, user *models.User, cfg *models.UserConfig, trigger string) (*pipeline.FetchReport, error)
	Process(ctx context.Context, user *models.User, cfg *models.UserConfig) (*pipeline.ProcessReport, error)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.NewBadRequest(apperrors.ErrCodeInvalidInput, "Invalid id")
	}
	return uint(id), nil
}

// intQuery reads a non-negative integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewBadRequest(apperrors.ErrCodeInvalidInput, "Invalid "+name+" parameter")
	}
	return n, nil
}
