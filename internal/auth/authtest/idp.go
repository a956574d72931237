// Package authtest provides a fake Microsoft identity platform and Graph
// /me endpoint for tests.
package authtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v4"
)

const Tenant = "test-tenant"

// IdP serves /{tenant}/oauth2/v2.0/token and /v1.0/me.
type IdP struct {
	Server *httptest.Server

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	idToken      string
	expiresIn    int
	tokenError   string
	meStatus     int
	meBody       string
	tokenForms   []url.Values
}

func NewIdP(t testing.TB) *IdP {
	t.Helper()
	p := &IdP{
		accessToken:  "access-1",
		refreshToken: "refresh-1",
		expiresIn:    3600,
		meStatus:     http.StatusOK,
		meBody:       `{"mail":"ann@example.com","displayName":"Ann Example"}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/"+Tenant+"/oauth2/v2.0/token", p.handleToken)
	mux.HandleFunc("/v1.0/me", p.handleMe)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *IdP) AuthorityURL() string { return p.Server.URL }
func (p *IdP) GraphURL() string     { return p.Server.URL + "/v1.0" }

// SetGrant sets the tokens returned by the next token requests.
func (p *IdP) SetGrant(access, refresh, idToken string, expiresIn int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessToken, p.refreshToken, p.idToken, p.expiresIn = access, refresh, idToken, expiresIn
	p.tokenError = ""
}

// FailToken makes the token endpoint answer 400 with the given OAuth error code.
func (p *IdP) FailToken(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenError = code
}

// SetMe sets the /me response.
func (p *IdP) SetMe(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meStatus, p.meBody = status, body
}

// TokenRequests returns the forms posted to the token endpoint.
func (p *IdP) TokenRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.tokenForms...)
}

func (p *IdP) handleToken(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))

	p.mu.Lock()
	p.tokenForms = append(p.tokenForms, form)
	tokenError := p.tokenError
	resp := map[string]interface{}{
		"access_token": p.accessToken,
		"token_type":   "Bearer",
		"expires_in":   p.expiresIn,
	}
	if p.refreshToken != "" {
		resp["refresh_token"] = p.refreshToken
	}
	if p.idToken != "" {
		resp["id_token"] = p.idToken
	}
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if tokenError != "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": tokenError, "error_description": "rejected by test IdP"})
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (p *IdP) handleMe(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	status, body := p.meStatus, p.meBody
	p.mu.Unlock()

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// IDToken builds a signed (HS256, throwaway key) JWT carrying claims.
func IDToken(t testing.TB, claims map[string]interface{}) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return tok
}
