package models

import (
	"testing"
	"time"
)

func TestMessageSender(t *testing.T) {
	m := Message{SenderEmail: "a@example.com", SenderName: "Alice"}
	if got := m.Sender(); got != "Alice <a@example.com>" {
		t.Fatalf("Sender() = %q", got)
	}
	m.SenderName = ""
	if got := m.Sender(); got != "a@example.com" {
		t.Fatalf("Sender() without name = %q", got)
	}
}

func TestUserTokenExpired(t *testing.T) {
	now := time.Now()
	u := User{}
	if !u.TokenExpired(now) {
		t.Fatal("missing expiry should count as expired")
	}
	future := now.Add(time.Minute)
	u.TokenExpiresAt = &future
	if u.TokenExpired(now) {
		t.Fatal("future expiry should not be expired")
	}
	past := now.Add(-time.Second)
	u.TokenExpiresAt = &past
	if !u.TokenExpired(now) {
		t.Fatal("past expiry should be expired")
	}
}

func TestAutoFetchDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	stale := now.Add(-25 * time.Hour)

	tests := []struct {
		name string
		cfg  UserConfig
		want bool
	}{
		{name: "disabled", cfg: UserConfig{AutoFetch: false}, want: false},
		{name: "never ran", cfg: UserConfig{AutoFetch: true, FetchIntervalHours: 24}, want: true},
		{name: "ran recently", cfg: UserConfig{AutoFetch: true, FetchIntervalHours: 24, LastAutoRunAt: &recent}, want: false},
		{name: "interval elapsed", cfg: UserConfig{AutoFetch: true, FetchIntervalHours: 24, LastAutoRunAt: &stale}, want: true},
		{name: "zero interval uses a day", cfg: UserConfig{AutoFetch: true, LastAutoRunAt: &recent}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.AutoFetchDue(now); got != tt.want {
				t.Fatalf("AutoFetchDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultUserConfig(t *testing.T) {
	c := DefaultUserConfig(7)
	if c.UserID != 7 || c.DaysToScrape != 7 || len(c.Folders) != 1 || c.Folders[0] != "Inbox" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if !c.IncludeAttachments || !c.AIEnabled || c.TransformMode != ModeSummarize || c.TargetLanguage != "zh" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.AutoFetch || c.FetchIntervalHours != 24 {
		t.Fatalf("unexpected scheduler defaults: %+v", c)
	}
}
