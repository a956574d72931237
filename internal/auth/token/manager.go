// Package token owns the access-token lifecycle: storing grants, serving
// cached tokens and refreshing expired ones.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/vault"
)

// ErrReauthRequired means the user has no usable token and must sign in again.
var ErrReauthRequired = errors.New("re-authentication required")

// defaultLifetime applies when the provider omits expires_in.
const defaultLifetime = time.Hour

// Manager handles token storage and refresh.
type Manager struct {
	db         *gorm.DB
	cipher     *vault.Cipher
	cache      vault.Cache
	oauth      *oauth2.Config
	httpClient *http.Client
	log        logging.Logger
	now        func() time.Time

	// refreshMu serializes refreshes so concurrent requests do not spend the
	// same refresh token twice.
	refreshMu sync.Mutex
}

// NewManager creates a token manager. httpClient may be nil.
func NewManager(database *gorm.DB, cipher *vault.Cipher, cache vault.Cache, oauth *oauth2.Config, httpClient *http.Client, log logging.Logger) *Manager {
	return &Manager{
		db:         database,
		cipher:     cipher,
		cache:      cache,
		oauth:      oauth,
		httpClient: httpClient,
		log:        log.WithComponent("token"),
		now:        time.Now,
	}
}

func (m *Manager) oauthContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// Exchange trades an authorization code for a grant.
func (m *Manager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return m.oauth.Exchange(m.oauthContext(ctx), code)
}

// StoreGrant persists a fresh grant for the user identified by email and
// caches the plaintext access token for active users. created reports a
// first sign-in.
func (m *Manager) StoreGrant(ctx context.Context, email, name string, tok *oauth2.Token) (*models.User, bool, error) {
	now := m.now().UTC()
	tokens, err := m.sealTokens(tok, now)
	if err != nil {
		return nil, false, err
	}

	user, created, err := db.UpsertUser(m.db, email, name, tokens, now)
	if err != nil {
		return nil, false, fmt.Errorf("save user: %w", err)
	}
	if user.IsActive {
		m.cache.Put(ctx, user.ID, tok.AccessToken, tokens.ExpiresAt)
	}
	return user, created, nil
}

func (m *Manager) sealTokens(tok *oauth2.Token, now time.Time) (db.TokenSet, error) {
	access, err := m.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return db.TokenSet{}, fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := m.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return db.TokenSet{}, fmt.Errorf("encrypt refresh token: %w", err)
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultLifetime)
	}
	return db.TokenSet{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiry.UTC()}, nil
}

// EnsureFresh refreshes the user's access token when it has expired.
// It returns ErrReauthRequired when no refresh is possible.
func (m *Manager) EnsureFresh(ctx context.Context, user *models.User) error {
	if !user.TokenExpired(m.now()) {
		return nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another request may have refreshed while we waited.
	var current models.User
	if err := m.db.First(&current, user.ID).Error; err == nil {
		*user = current
		if !user.TokenExpired(m.now()) {
			return nil
		}
	}

	userLog := m.log.WithUserID(user.ID)
	refreshToken := m.cipher.Decrypt(user.RefreshToken)
	if refreshToken == "" {
		userLog.Warn("Access token expired and no refresh token is available")
		return ErrReauthRequired
	}

	tok, err := m.oauth.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		if isPermanentRefreshError(err) {
			userLog.Warn("Refresh token rejected, user must sign in again", logging.Err(err))
		} else {
			userLog.Warn("Transient refresh failure", logging.Err(err))
		}
		m.cache.Clear(ctx, user.ID)
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	} else if tok.RefreshToken != refreshToken {
		userLog.Info("Rotating refresh token")
	}

	tokens, err := m.sealTokens(tok, m.now().UTC())
	if err != nil {
		return err
	}
	if err := db.SaveTokens(m.db, user, tokens); err != nil {
		return fmt.Errorf("save refreshed tokens: %w", err)
	}
	m.cache.Put(ctx, user.ID, tok.AccessToken, tokens.ExpiresAt)

	userLog.Info("Refreshed access token", logging.String("expires_at", tokens.ExpiresAt.Format(time.RFC3339)))
	return nil
}

// AccessToken returns the user's plaintext access token from the cache or,
// failing that, the stored ciphertext.
func (m *Manager) AccessToken(ctx context.Context, user *models.User) (string, error) {
	if tok := m.cache.Get(ctx, user.ID); tok != "" {
		return tok, nil
	}
	tok := m.cipher.Decrypt(user.AccessToken)
	if tok == "" {
		return "", ErrReauthRequired
	}
	var expiry time.Time
	if user.TokenExpiresAt != nil {
		expiry = *user.TokenExpiresAt
	}
	m.cache.Put(ctx, user.ID, tok, expiry)
	return tok, nil
}

// Fresh refreshes if needed and returns a usable access token.
func (m *Manager) Fresh(ctx context.Context, user *models.User) (string, error) {
	if err := m.EnsureFresh(ctx, user); err != nil {
		return "", err
	}
	return m.AccessToken(ctx, user)
}

// Forget drops the user's cached token.
func (m *Manager) Forget(ctx context.Context, userID uint) {
	m.cache.Clear(ctx, userID)
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
		"interaction_required",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
