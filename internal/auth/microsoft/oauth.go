// Package microsoft implements sign-in against the Microsoft identity platform.
package microsoft

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/pysugar/outlook-relay/internal/util"
)

// Scopes requested at sign-in. offline_access yields a refresh token.
var Scopes = []string{
	"openid",
	"profile",
	"email",
	"offline_access",
	"User.Read",
	"Mail.Read",
	"Mail.ReadBasic",
}

// Settings identifies the registered application.
type Settings struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURI  string
	// AuthorityURL replaces https://login.microsoftonline.com when set.
	AuthorityURL string
}

// OAuthConfig returns the OAuth2 config for the application.
func OAuthConfig(s Settings) *oauth2.Config {
	tenant := s.TenantID
	if tenant == "" {
		tenant = "common"
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if s.AuthorityURL != "" {
		base := strings.TrimRight(s.AuthorityURL, "/") + "/" + tenant + "/oauth2/v2.0"
		endpoint = oauth2.Endpoint{
			AuthURL:  base + "/authorize",
			TokenURL: base + "/token",
		}
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURI,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

// NewState returns a 32-byte URL-safe random nonce.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthURL builds the consent redirect for state.
func AuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query"))
}

// Profile is the identity of a signed-in user.
type Profile struct {
	Email string
	Name  string
}

// FetchProfile reads /me from Graph with client, which must already carry
// the user's bearer token.
func FetchProfile(ctx context.Context, client *http.Client, graphURL string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(graphURL, "/")+"/me", nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("fetch profile: status %d: %s", resp.StatusCode, util.TruncateLog(string(body), 256))
	}

	var me struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		DisplayName       string `json:"displayName"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return Profile{Email: email, Name: me.DisplayName}, nil
}

// ProfileFromIDToken reads upn/email and name from an id_token without
// verifying its signature. The token came straight from the token endpoint
// over TLS.
func ProfileFromIDToken(idToken string) (Profile, error) {
	if idToken == "" {
		return Profile{}, fmt.Errorf("no id_token in grant")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return Profile{}, fmt.Errorf("parse id_token: %w", err)
	}
	str := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}
	email := str("upn")
	if email == "" {
		email = str("email")
	}
	return Profile{Email: email, Name: str("name")}, nil
}
