package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth"
	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/dbtest"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/pipeline"
)

type stubPasses struct {
	fetchErr   error
	processErr error
	fetched    int
	processed  int
}

func (s *stubPasses) Fetch(context.Context, *models.User, *models.UserConfig, string) (*pipeline.FetchReport, error) {
	s.fetched++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return &pipeline.FetchReport{Total: 3, New: 2, Folders: []pipeline.FolderResult{{Folder: "Inbox", Listed: 3, New: 2}}}, nil
}

func (s *stubPasses) Process(context.Context, *models.User, *models.UserConfig) (*pipeline.ProcessReport, error) {
	s.processed++
	if s.processErr != nil {
		return nil, s.processErr
	}
	return &pipeline.ProcessReport{Total: 2, Processed: 2, Sent: 1, Errors: []pipeline.ItemResult{{MessageID: 9, Error: "send failed: boom"}}}, nil
}

type apiFixture struct {
	db     *gorm.DB
	user   *models.User
	other  *models.User
	passes *stubPasses
	router chi.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{db: dbtest.New(t), passes: &stubPasses{}}
	f.user = &models.User{Email: "ann@example.com", Name: "Ann", IsActive: true}
	f.other = &models.User{Email: "eve@example.com", IsActive: true}
	f.db.Create(f.user)
	f.db.Create(f.other)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithUser(req.Context(), f.user)))
		})
	})
	r.Get("/api/messages", ListMessagesHandler(f.db))
	r.Get("/api/messages/{id}", GetMessageHandler(f.db))
	r.Delete("/api/messages/{id}", DeleteMessageHandler(f.db))
	r.Post("/api/fetch", FetchHandler(f.db, f.passes))
	r.Post("/api/process", ProcessHandler(f.db, f.passes))
	r.Get("/api/config", GetConfigHandler(f.db))
	r.Put("/api/config", UpdateConfigHandler(f.db))
	r.Get("/api/logs", LogsHandler(f.db))
	r.Get("/dashboard", DashboardHandler(f.db, "Relay"))
	r.Get("/health", HealthHandler("Relay"))
	f.router = r
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) message(t *testing.T, owner *models.User, providerID, body string) *models.Message {
	t.Helper()
	msg := &models.Message{UserID: owner.ID, ProviderMessageID: providerID, Subject: "s-" + providerID, BodyText: body}
	if err := db.CreateMessage(f.db, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return msg
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body apperrors.ErrorResponse
	decode(t, rec, &body)
	return body.Error
}

func TestListMessages(t *testing.T) {
	f := newAPIFixture(t)
	f.message(t, f.user, "a", strings.Repeat("x", 250))
	f.message(t, f.user, "b", "short")
	f.message(t, f.other, "c", "not mine")

	rec := f.do(t, http.MethodGet, "/api/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Messages []messageView `json:"messages"`
		Total    int64         `json:"total"`
		Limit    int           `json:"limit"`
	}
	decode(t, rec, &body)
	if body.Total != 2 || len(body.Messages) != 2 || body.Limit != defaultPageLimit {
		t.Fatalf("unexpected listing: %+v", body)
	}
	for _, m := range body.Messages {
		if m.Subject == "s-a" && m.BodyPreview != strings.Repeat("x", 200)+"..." {
			t.Fatalf("preview not truncated: %q", m.BodyPreview)
		}
	}

	rec = f.do(t, http.MethodGet, "/api/messages?skip=1&limit=1", "")
	decode(t, rec, &body)
	if len(body.Messages) != 1 || body.Total != 2 {
		t.Fatalf("paging ignored: %+v", body)
	}

	rec = f.do(t, http.MethodGet, "/api/messages?limit=-3", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit should be rejected, got %d", rec.Code)
	}
}

func TestGetAndDeleteMessage_Ownership(t *testing.T) {
	f := newAPIFixture(t)
	mine := f.message(t, f.user, "a", "hello")
	theirs := f.message(t, f.other, "b", "secret")

	if rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/messages/%d", theirs.ID), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign message should be 404, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, fmt.Sprintf("/api/messages/%d", theirs.ID), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete should be 404, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/messages/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id should be 400, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/messages/%d", mine.ID), "")
	var got models.Message
	decode(t, rec, &got)
	if rec.Code != http.StatusOK || got.BodyText != "hello" {
		t.Fatalf("unexpected message: %d %+v", rec.Code, got)
	}

	if rec := f.do(t, http.MethodDelete, fmt.Sprintf("/api/messages/%d", mine.ID), ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/messages/%d", mine.ID), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted message should be gone, got %d", rec.Code)
	}
}

func TestFetch_RequiresConfig(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/fetch", "")
	if rec.Code != http.StatusBadRequest || errorCodeOf(t, rec) != apperrors.ErrCodeConfigNotFound {
		t.Fatalf("expected 400 config not found, got %d %s", rec.Code, rec.Body.String())
	}
	if f.passes.fetched != 0 {
		t.Fatal("fetch should not run without config")
	}
}

func TestFetch_Responses(t *testing.T) {
	f := newAPIFixture(t)
	db.GetOrCreateConfig(f.db, f.user.ID)

	rec := f.do(t, http.MethodPost, "/api/fetch", "")
	var body struct {
		Message string                  `json:"message"`
		Total   int                     `json:"total"`
		New     int                     `json:"new"`
		Folders []pipeline.FolderResult `json:"folders"`
	}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.New != 2 || body.Total != 3 || len(body.Folders) != 1 {
		t.Fatalf("unexpected fetch response: %d %+v", rec.Code, body)
	}

	f.passes.fetchErr = fmt.Errorf("open mailbox: %w", token.ErrReauthRequired)
	rec = f.do(t, http.MethodPost, "/api/fetch", "")
	if rec.Code != http.StatusUnauthorized || errorCodeOf(t, rec) != apperrors.ErrCodeTokenExpired {
		t.Fatalf("expected 401, got %d %s", rec.Code, rec.Body.String())
	}

	f.passes.fetchErr = errors.New("message stored concurrently")
	rec = f.do(t, http.MethodPost, "/api/fetch", "")
	if rec.Code != http.StatusInternalServerError || errorCodeOf(t, rec) != apperrors.ErrCodeFetchFailed {
		t.Fatalf("expected 500, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestProcess_Responses(t *testing.T) {
	f := newAPIFixture(t)
	db.GetOrCreateConfig(f.db, f.user.ID)

	f.passes.processErr = pipeline.ErrNoRecipient
	rec := f.do(t, http.MethodPost, "/api/process", "")
	if rec.Code != http.StatusBadRequest || errorCodeOf(t, rec) != apperrors.ErrCodeMissingField {
		t.Fatalf("expected 400 missing recipient, got %d %s", rec.Code, rec.Body.String())
	}

	f.passes.processErr = nil
	rec = f.do(t, http.MethodPost, "/api/process", "")
	var body struct {
		Processed int                   `json:"processed"`
		Sent      int                   `json:"sent"`
		Errors    []pipeline.ItemResult `json:"errors"`
	}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.Processed != 2 || body.Sent != 1 || len(body.Errors) != 1 || body.Errors[0].MessageID != 9 {
		t.Fatalf("unexpected process response: %d %+v", rec.Code, body)
	}
}

func TestConfig_GetCreatesDefaults(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/config", "")
	var cfg models.UserConfig
	decode(t, rec, &cfg)
	if rec.Code != http.StatusOK || cfg.UserID != f.user.ID || cfg.TransformMode != models.ModeSummarize || len(cfg.Folders) != 1 {
		t.Fatalf("unexpected defaults: %d %+v", rec.Code, cfg)
	}
}

func TestConfig_UpdateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "days too low", body: `{"days_to_scrape":0}`, code: apperrors.ErrCodeValidationFailed},
		{name: "days too high", body: `{"days_to_scrape":366}`, code: apperrors.ErrCodeValidationFailed},
		{name: "unknown mode", body: `{"transform_mode":"poetry"}`, code: apperrors.ErrCodeValidationFailed},
		{name: "bad recipient", body: `{"recipient":"not an address"}`, code: apperrors.ErrCodeInvalidEmail},
		{name: "empty folders", body: `{"folders":[" "]}`, code: apperrors.ErrCodeValidationFailed},
		{name: "zero interval", body: `{"fetch_interval_hours":0}`, code: apperrors.ErrCodeValidationFailed},
		{name: "unknown field", body: `{"colour":"blue"}`, code: apperrors.ErrCodeInvalidInput},
		{name: "not json", body: `days=3`, code: apperrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			rec := f.do(t, http.MethodPut, "/api/config", tt.body)
			if rec.Code != http.StatusBadRequest || errorCodeOf(t, rec) != tt.code {
				t.Fatalf("expected 400 %s, got %d %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestConfig_PartialUpdatePersists(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"days_to_scrape":3,"recipient":"Boss <boss@example.com>","transform_mode":"NONE","ai_enabled":false,"keyword_filter":["invoice"," "],"auto_fetch":true}`
	rec := f.do(t, http.MethodPut, "/api/config", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	cfg, err := db.GetConfig(f.db, f.user.ID)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DaysToScrape != 3 || cfg.Recipient != "boss@example.com" || cfg.TransformMode != models.ModeNone || cfg.AIEnabled {
		t.Fatalf("update not applied: %+v", cfg)
	}
	if len(cfg.KeywordFilter) != 1 || !cfg.AutoFetch {
		t.Fatalf("update not applied: %+v", cfg)
	}
	if cfg.TargetLanguage != "zh" || len(cfg.Folders) != 1 {
		t.Fatalf("untouched fields changed: %+v", cfg)
	}

	// Clearing the recipient is allowed.
	rec = f.do(t, http.MethodPut, "/api/config", `{"recipient":""}`)
	cfg, _ = db.GetConfig(f.db, f.user.ID)
	if rec.Code != http.StatusOK || cfg.Recipient != "" {
		t.Fatalf("recipient not cleared: %d %+v", rec.Code, cfg)
	}
}

func TestLogs(t *testing.T) {
	f := newAPIFixture(t)
	entry, _ := db.StartFetchLog(f.db, f.user.ID, models.TriggerManual)
	db.StartFetchLog(f.db, f.other.ID, models.TriggerManual)
	db.CreateSendLog(f.db, &models.SendLog{UserID: f.user.ID, Recipient: "r@example.com", Status: models.StatusSuccess})

	rec := f.do(t, http.MethodGet, "/api/logs", "")
	var body struct {
		FetchLogs []models.FetchLog `json:"fetch_logs"`
		SendLogs  []models.SendLog  `json:"send_logs"`
	}
	decode(t, rec, &body)
	if len(body.FetchLogs) != 1 || body.FetchLogs[0].ID != entry.ID || len(body.SendLogs) != 1 {
		t.Fatalf("unexpected logs: %+v", body)
	}

	rec = f.do(t, http.MethodGet, "/api/logs?kind=send", "")
	var only map[string]json.RawMessage
	decode(t, rec, &only)
	if _, ok := only["fetch_logs"]; ok {
		t.Fatal("kind=send should omit fetch logs")
	}

	if rec := f.do(t, http.MethodGet, "/api/logs?kind=audit", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind should be 400, got %d", rec.Code)
	}
}

func TestDashboard(t *testing.T) {
	f := newAPIFixture(t)
	f.message(t, f.user, "a", "hello")

	rec := f.do(t, http.MethodGet, "/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	page := rec.Body.String()
	if !strings.Contains(page, "ann@example.com") || !strings.Contains(page, "Stored: 1") || !strings.Contains(page, "Recipient: not set") {
		t.Fatalf("unexpected dashboard: %s", page)
	}
	if _, err := db.GetConfig(f.db, f.user.ID); err != nil {
		t.Fatalf("dashboard should create the default config: %v", err)
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	var body map[string]string
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["app"] != "Relay" {
		t.Fatalf("unexpected health: %d %v", rec.Code, body)
	}
}
