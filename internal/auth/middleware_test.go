package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth/authtest"
	"github.com/pysugar/outlook-relay/internal/auth/microsoft"
	"github.com/pysugar/outlook-relay/internal/auth/session"
	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/db/dbtest"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/vault"
)

type guardFixture struct {
	db     *gorm.DB
	idp    *authtest.IdP
	tokens *token.Manager
	app    *httptest.Server
	client *http.Client
	seen   *models.User
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	f := &guardFixture{db: dbtest.New(t), idp: authtest.NewIdP(t)}
	key, _ := vault.GenerateKey()
	cipher, _ := vault.NewCipher(key)
	oauth := microsoft.OAuthConfig(microsoft.Settings{
		ClientID:     "client-id",
		TenantID:     authtest.Tenant,
		AuthorityURL: f.idp.AuthorityURL(),
	})
	f.tokens = token.NewManager(f.db, cipher, vault.NewMemoryCache(), oauth, nil, logging.Nop())
	store := session.NewStore(f.db, session.Options{Secret: "s3cret"}, logging.Nop())

	mux := http.NewServeMux()
	// /signin/{id} simulates a completed sign-in.
	mux.HandleFunc("/signin/", func(w http.ResponseWriter, r *http.Request) {
		session.FromContext(r.Context()).Set(microsoft.SessionUserID, r.URL.Path[len("/signin/"):])
	})
	mux.Handle("/protected", RequireUser(f.db, f.tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))
	f.app = httptest.NewServer(store.Middleware(mux))
	t.Cleanup(f.app.Close)

	jar, _ := cookiejar.New(nil)
	f.client = &http.Client{Jar: jar}
	return f
}

func (f *guardFixture) user(t *testing.T, expiry time.Time) *models.User {
	t.Helper()
	user, _, err := f.tokens.StoreGrant(context.Background(), "ann@example.com", "Ann", &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       expiry,
	})
	if err != nil {
		t.Fatalf("store grant: %v", err)
	}
	return user
}

func (f *guardFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.app.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *guardFixture) signIn(t *testing.T, id uint) {
	t.Helper()
	f.get(t, "/signin/"+strconv.FormatUint(uint64(id), 10))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body apperrors.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Error
}

func TestRequireUser_NotSignedIn(t *testing.T) {
	f := newGuardFixture(t)
	resp := f.get(t, "/protected")
	if resp.StatusCode != http.StatusUnauthorized || errorCode(t, resp) != apperrors.ErrCodeNotLoggedIn {
		t.Fatalf("expected 401 not logged in, got %d", resp.StatusCode)
	}
}

func TestRequireUser_ValidSession(t *testing.T) {
	f := newGuardFixture(t)
	user := f.user(t, time.Now().Add(time.Hour))
	f.signIn(t, user.ID)

	resp := f.get(t, "/protected")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if f.seen == nil || f.seen.ID != user.ID {
		t.Fatalf("handler did not receive the user: %+v", f.seen)
	}
}

func TestRequireUser_InactiveUserClearsSession(t *testing.T) {
	f := newGuardFixture(t)
	user := f.user(t, time.Now().Add(time.Hour))
	f.signIn(t, user.ID)
	f.db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false)

	resp := f.get(t, "/protected")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	f.db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", true)
	resp = f.get(t, "/protected")
	if resp.StatusCode != http.StatusUnauthorized || errorCode(t, resp) != apperrors.ErrCodeNotLoggedIn {
		t.Fatalf("session should have been cleared, got %d", resp.StatusCode)
	}
}

func TestRequireUser_RefreshesExpiredToken(t *testing.T) {
	f := newGuardFixture(t)
	user := f.user(t, time.Now().Add(-time.Minute))
	f.idp.SetGrant("access-2", "refresh-2", "", 3600)
	f.signIn(t, user.ID)

	resp := f.get(t, "/protected")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected refresh to succeed, got %d", resp.StatusCode)
	}
	if f.seen == nil || f.seen.TokenExpired(time.Now()) {
		t.Fatal("handler should see the refreshed expiry")
	}
}

func TestRequireUser_FailedRefresh(t *testing.T) {
	f := newGuardFixture(t)
	user := f.user(t, time.Now().Add(-time.Minute))
	f.idp.FailToken("invalid_grant")
	f.signIn(t, user.ID)

	resp := f.get(t, "/protected")
	if resp.StatusCode != http.StatusUnauthorized || errorCode(t, resp) != apperrors.ErrCodeTokenExpired {
		t.Fatalf("expected 401 token expired, got %d", resp.StatusCode)
	}
}
