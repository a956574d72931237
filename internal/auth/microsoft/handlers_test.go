package microsoft

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth/authtest"
	"github.com/pysugar/outlook-relay/internal/auth/session"
	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/db/dbtest"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/vault"
)

type authFixture struct {
	idp    *authtest.IdP
	db     *gorm.DB
	cache  *vault.MemoryCache
	app    *httptest.Server
	client *http.Client
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	idp := authtest.NewIdP(t)
	database := dbtest.New(t)
	key, _ := vault.GenerateKey()
	cipher, err := vault.NewCipher(key)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	cache := vault.NewMemoryCache()

	oauth := OAuthConfig(Settings{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TenantID:     authtest.Tenant,
		RedirectURI:  "http://localhost/auth/callback",
		AuthorityURL: idp.AuthorityURL(),
	})
	tokens := token.NewManager(database, cipher, cache, oauth, nil, logging.Nop())
	h := NewHandler(oauth, tokens, database, idp.GraphURL(), nil)
	store := session.NewStore(database, session.Options{Secret: "s3cret"}, logging.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", h.Login)
	mux.HandleFunc("/auth/callback", h.Callback)
	mux.HandleFunc("/auth/logout", h.Logout)
	app := httptest.NewServer(store.Middleware(mux))
	t.Cleanup(app.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &authFixture{idp: idp, db: database, cache: cache, app: app, client: client}
}

func (f *authFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.app.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// login starts the flow and returns the state nonce sent to the provider.
func (f *authFixture) login(t *testing.T) string {
	t.Helper()
	resp := f.get(t, "/auth/login")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	return loc.Query().Get("state")
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body apperrors.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func (f *authFixture) userCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	f.db.Model(&models.User{}).Count(&n)
	return n
}

func TestLogin_RedirectsToAuthorize(t *testing.T) {
	f := newAuthFixture(t)
	resp := f.get(t, "/auth/login")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc.Path != "/"+authtest.Tenant+"/oauth2/v2.0/authorize" {
		t.Fatalf("unexpected authorize path %q", loc.Path)
	}
	q := loc.Query()
	if q.Get("client_id") != "client-id" || q.Get("response_type") != "code" || q.Get("response_mode") != "query" {
		t.Fatalf("unexpected authorize query %v", q)
	}
	if q.Get("redirect_uri") != "http://localhost/auth/callback" {
		t.Fatalf("unexpected redirect uri %q", q.Get("redirect_uri"))
	}
	if !strings.Contains(q.Get("scope"), "offline_access") || !strings.Contains(q.Get("scope"), "Mail.Read") {
		t.Fatalf("unexpected scope %q", q.Get("scope"))
	}
	if len(q.Get("state")) < 40 {
		t.Fatalf("state nonce too short: %q", q.Get("state"))
	}
}

func TestCallback_Success(t *testing.T) {
	f := newAuthFixture(t)
	state := f.login(t)

	resp := f.get(t, "/auth/callback?code=auth-code&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	reqs := f.idp.TokenRequests()
	if len(reqs) != 1 || reqs[0].Get("grant_type") != "authorization_code" || reqs[0].Get("code") != "auth-code" {
		t.Fatalf("unexpected token requests %v", reqs)
	}

	var user models.User
	if err := f.db.Where("email = ?", "ann@example.com").First(&user).Error; err != nil {
		t.Fatalf("expected user row: %v", err)
	}
	if user.Name != "Ann Example" || user.LastLogin == nil {
		t.Fatalf("unexpected user %+v", user)
	}
	var cfg models.UserConfig
	if err := f.db.Where("user_id = ?", user.ID).First(&cfg).Error; err != nil {
		t.Fatalf("expected default config: %v", err)
	}
	if f.cache.Get(context.Background(), user.ID) != "access-1" {
		t.Fatal("expected access token to be cached")
	}

	// The nonce is single use.
	resp = f.get(t, "/auth/callback?code=auth-code&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("replayed state should fail, got %d", resp.StatusCode)
	}
}

func TestCallback_StateMismatch(t *testing.T) {
	f := newAuthFixture(t)
	state := f.login(t)

	resp := f.get(t, "/auth/callback?code=auth-code&state=forged")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != apperrors.ErrCodeStateMismatch {
		t.Fatalf("unexpected error code %q", code)
	}
	if n := f.userCount(t); n != 0 {
		t.Fatalf("no user should be created, got %d", n)
	}
	if len(f.idp.TokenRequests()) != 0 {
		t.Fatal("code must not be exchanged on state mismatch")
	}

	// The original nonce was consumed by the failed attempt.
	resp = f.get(t, "/auth/callback?code=auth-code&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 after nonce removal, got %d", resp.StatusCode)
	}
}

func TestCallback_DisabledAccountIsRejected(t *testing.T) {
	f := newAuthFixture(t)
	disabled := models.User{Email: "ann@example.com", Name: "Ann Example"}
	if err := f.db.Create(&disabled).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := f.db.Model(&disabled).Update("is_active", false).Error; err != nil {
		t.Fatalf("disable user: %v", err)
	}

	state := f.login(t)
	resp := f.get(t, "/auth/callback?code=auth-code&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != apperrors.ErrCodeAccountDisabled {
		t.Fatalf("unexpected error code %q", code)
	}

	var user models.User
	if err := f.db.First(&user, disabled.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if user.IsActive {
		t.Fatal("sign-in must not reactivate a disabled account")
	}
	if f.cache.Get(context.Background(), user.ID) != "" {
		t.Fatal("disabled account must not get a cached token")
	}

	var sessions []models.Session
	f.db.Find(&sessions)
	for _, s := range sessions {
		if s.Data[SessionUserID] != "" {
			t.Fatalf("no signed-in session expected, got %v", s.Data)
		}
	}
}

func TestCallback_ProviderErrorAndMissingCode(t *testing.T) {
	f := newAuthFixture(t)
	f.login(t)

	resp := f.get(t, "/auth/callback?error=access_denied&error_description=denied")
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, resp) != apperrors.ErrCodeProviderError {
		t.Fatalf("expected provider error, got %d", resp.StatusCode)
	}

	f.login(t)
	resp = f.get(t, "/auth/callback?state=whatever")
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, resp) != apperrors.ErrCodeMissingCode {
		t.Fatalf("expected missing code error, got %d", resp.StatusCode)
	}
}

func TestCallback_FallsBackToIDTokenClaims(t *testing.T) {
	f := newAuthFixture(t)
	f.idp.SetMe(http.StatusForbidden, `{"error":{"code":"Authorization_RequestDenied"}}`)
	f.idp.SetGrant("access-1", "refresh-1", authtest.IDToken(t, map[string]interface{}{
		"upn":  "bob@example.com",
		"name": "Bob",
	}), 3600)

	state := f.login(t)
	resp := f.get(t, "/auth/callback?code=c&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	var user models.User
	if err := f.db.Where("email = ?", "bob@example.com").First(&user).Error; err != nil {
		t.Fatalf("expected user from id_token claims: %v", err)
	}
	if user.Name != "Bob" {
		t.Fatalf("unexpected name %q", user.Name)
	}
}

func TestCallback_MissingEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.idp.SetMe(http.StatusOK, `{"displayName":"Nobody"}`)

	state := f.login(t)
	resp := f.get(t, "/auth/callback?code=c&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, resp) != apperrors.ErrCodeMissingEmail {
		t.Fatalf("expected missing email error, got %d", resp.StatusCode)
	}
	if n := f.userCount(t); n != 0 {
		t.Fatalf("no user should be created, got %d", n)
	}
}

func TestCallback_ExchangeFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.idp.FailToken("invalid_grant")

	state := f.login(t)
	resp := f.get(t, "/auth/callback?code=c&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusInternalServerError || errorCode(t, resp) != apperrors.ErrCodeExchangeFailed {
		t.Fatalf("expected exchange failure, got %d", resp.StatusCode)
	}
}

func TestLogout_ClearsSessionAndCache(t *testing.T) {
	f := newAuthFixture(t)
	state := f.login(t)
	f.get(t, "/auth/callback?code=c&state="+url.QueryEscape(state))

	var user models.User
	if err := f.db.Where("email = ?", "ann@example.com").First(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}

	resp := f.get(t, "/auth/logout")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected redirect home, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if f.cache.Get(context.Background(), user.ID) != "" {
		t.Fatal("cached token should be cleared on logout")
	}
	var sessions int64
	f.db.Model(&models.Session{}).Count(&sessions)
	if sessions != 0 {
		t.Fatalf("expected no sessions, got %d", sessions)
	}
}

func TestProfileFromIDToken(t *testing.T) {
	p, err := ProfileFromIDToken(authtest.IDToken(t, map[string]interface{}{"email": "c@example.com", "name": "C"}))
	if err != nil || p.Email != "c@example.com" || p.Name != "C" {
		t.Fatalf("unexpected profile %+v %v", p, err)
	}
	if _, err := ProfileFromIDToken("not-a-jwt"); err == nil {
		t.Fatal("expected parse error")
	}
}
