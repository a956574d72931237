package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestFromViper_Defaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	s, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() error: %v", err)
	}
	if s.Microsoft.TenantID != "common" {
		t.Errorf("tenant = %q, want common", s.Microsoft.TenantID)
	}
	if s.Microsoft.RedirectURI != "http://localhost:8080/auth/callback" {
		t.Errorf("redirect = %q", s.Microsoft.RedirectURI)
	}
	if s.AI.SummaryMaxLength != 200 || s.AI.SummaryTimeout != 30*time.Second || s.AI.TranslateTimeout != 60*time.Second {
		t.Errorf("unexpected AI defaults: %+v", s.AI)
	}
	if s.Mailbox.PageSize != 100 || s.Mailbox.Backend != "graph" {
		t.Errorf("unexpected mailbox defaults: %+v", s.Mailbox)
	}
	if s.Session.MaxAge != 7*24*time.Hour {
		t.Errorf("session max age = %v, want 7 days", s.Session.MaxAge)
	}
	if s.AI.AIConfigured() {
		t.Error("AI should not be configured by default")
	}
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("BASE_URL", "https://relay.example.com/")
	v.Set("SMTP_USER", "bot@example.com")
	v.Set("AI_API_URL", "https://ai.example.com/v1/")
	v.Set("AI_API_KEY", "k")
	v.Set("AI_SUMMARY_TIMEOUT", "5s")

	s, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() error: %v", err)
	}
	if s.Microsoft.RedirectURI != "https://relay.example.com/auth/callback" {
		t.Errorf("redirect = %q", s.Microsoft.RedirectURI)
	}
	if s.Relay.From != "bot@example.com" {
		t.Errorf("from should default to SMTP user, got %q", s.Relay.From)
	}
	if s.AI.APIURL != "https://ai.example.com/v1" || !s.AI.AIConfigured() {
		t.Errorf("unexpected AI settings: %+v", s.AI)
	}
	if s.AI.SummaryTimeout != 5*time.Second {
		t.Errorf("summary timeout = %v", s.AI.SummaryTimeout)
	}
}

func TestFromViper_RejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"MAILBOX_BACKEND", "pop3"},
		{"RELAY_TRANSPORT", "carrier-pigeon"},
		{"FETCH_PAGE_SIZE", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set(tt.key, tt.value)
			if _, err := FromViper(v); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("MAILBOX_BACKEND", "IMAP")
	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.App.Addr() != "127.0.0.1:9191" {
		t.Errorf("addr = %q", s.App.Addr())
	}
	if s.Mailbox.Backend != "imap" {
		t.Errorf("backend = %q, want imap", s.Mailbox.Backend)
	}
}
