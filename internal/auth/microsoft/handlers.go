package microsoft

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth/session"
	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/logging"
)

// Session keys.
const (
	SessionState     = "oauth_state"
	SessionUserID    = "user_id"
	SessionUserEmail = "user_email"
)

// Handler serves the /auth routes.
type Handler struct {
	oauth    *oauth2.Config
	tokens   *token.Manager
	db       *gorm.DB
	graphURL string
	// httpClient is the base client for Graph profile lookups; nil uses the default.
	httpClient *http.Client
}

func NewHandler(oauth *oauth2.Config, tokens *token.Manager, database *gorm.DB, graphURL string, httpClient *http.Client) *Handler {
	return &Handler{oauth: oauth, tokens: tokens, db: database, graphURL: graphURL, httpClient: httpClient}
}

// Login starts the authorization code flow.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := NewState()
	if err != nil {
		apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeUnexpectedError, "Failed to start sign-in", err))
		return
	}
	session.FromContext(r.Context()).Set(SessionState, state)
	http.Redirect(w, r, AuthURL(h.oauth, state), http.StatusFound)
}

// Callback completes the flow: it checks the state nonce, exchanges the
// code, resolves the user's identity and establishes the session.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sess := session.FromContext(r.Context())
	reqLog := logging.FromContext(r.Context())

	if e := q.Get("error"); e != "" {
		sess.Delete(SessionState)
		apperrors.Write(w, r, apperrors.NewBadRequest(apperrors.ErrCodeProviderError, "Sign-in was rejected by the identity provider").
			WithDetail(e+": "+q.Get("error_description")))
		return
	}
	code := q.Get("code")
	if code == "" {
		sess.Delete(SessionState)
		apperrors.Write(w, r, apperrors.NewBadRequest(apperrors.ErrCodeMissingCode, "Missing authorization code"))
		return
	}
	stored := sess.Pop(SessionState)
	if stored == "" || stored != q.Get("state") {
		apperrors.Write(w, r, apperrors.NewBadRequest(apperrors.ErrCodeStateMismatch, "Invalid state parameter"))
		return
	}

	tok, err := h.tokens.Exchange(r.Context(), code)
	if err != nil {
		apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeExchangeFailed, "Failed to complete sign-in", err))
		return
	}

	profile := h.resolveProfile(r.Context(), tok, reqLog)
	if profile.Email == "" {
		apperrors.Write(w, r, apperrors.NewBadRequest(apperrors.ErrCodeMissingEmail,
			"Could not determine the account email; make sure User.Read consent was granted"))
		return
	}

	user, created, err := h.tokens.StoreGrant(r.Context(), profile.Email, profile.Name, tok)
	if err != nil {
		apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeExchangeFailed, "Failed to complete sign-in", err))
		return
	}
	if !user.IsActive {
		reqLog.Warn("Sign-in rejected for disabled account", logging.UserID(user.ID))
		apperrors.Write(w, r, apperrors.NewUnauthorized(apperrors.ErrCodeAccountDisabled, "This account is disabled"))
		return
	}
	if created {
		if _, err := db.GetOrCreateConfig(h.db, user.ID); err != nil {
			apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to create default configuration", err))
			return
		}
	}

	sess.RotateID()
	sess.Set(SessionUserID, strconv.FormatUint(uint64(user.ID), 10))
	sess.Set(SessionUserEmail, user.Email)

	reqLog.Info("User signed in", logging.UserID(user.ID), logging.Email(user.Email), logging.Bool("new_user", created))
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (h *Handler) resolveProfile(ctx context.Context, tok *oauth2.Token, log logging.Logger) Profile {
	base := http.DefaultTransport
	if h.httpClient != nil && h.httpClient.Transport != nil {
		base = h.httpClient.Transport
	}
	client := &http.Client{
		Timeout:   15 * time.Second,
		Transport: &oauth2.Transport{Source: oauth2.StaticTokenSource(tok), Base: base},
	}

	profile, err := FetchProfile(ctx, client, h.graphURL)
	if err == nil && profile.Email != "" {
		return profile
	}
	if err != nil {
		log.Warn("Graph profile lookup failed, falling back to id_token", logging.Err(err))
	}

	idToken, _ := tok.Extra("id_token").(string)
	claims, cerr := ProfileFromIDToken(idToken)
	if cerr != nil {
		log.Warn("Could not read identity from id_token", logging.Err(cerr))
		return profile
	}
	return claims
}

// Logout clears the session and the user's cached token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if id, err := strconv.ParseUint(sess.Get(SessionUserID), 10, 64); err == nil {
		h.tokens.Forget(r.Context(), uint(id))
	}
	sess.Clear()
	http.Redirect(w, r, "/", http.StatusFound)
}
