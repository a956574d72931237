// Package config loads process settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings is the fully resolved process configuration.
type Settings struct {
	App       AppSettings
	Database  DatabaseSettings
	Microsoft MicrosoftSettings
	Mailbox   MailboxSettings
	AI        AISettings
	Relay     RelaySettings
	Vault     VaultSettings
	Session   SessionSettings
	Scheduler SchedulerSettings
}

type AppSettings struct {
	Name     string
	Env      string
	LogLevel string
	Host     string
	Port     string
	BaseURL  string
}

// Addr is the listen address for the HTTP server.
func (a AppSettings) Addr() string {
	return a.Host + ":" + a.Port
}

type DatabaseSettings struct {
	URL string
}

type MicrosoftSettings struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURI  string
	// AuthorityURL overrides the identity platform host, e.g. for a test IdP.
	AuthorityURL string
}

type MailboxSettings struct {
	Backend  string // "graph" or "imap"
	GraphURL string
	IMAPAddr string
	PageSize int
}

type AISettings struct {
	APIURL           string
	APIKey           string
	Model            string
	SummaryMaxLength int
	SummaryTimeout   time.Duration
	TranslateTimeout time.Duration
	LanguagesFile    string
}

type RelaySettings struct {
	Transport     string // "smtp" or "ses"
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPUseTLS    bool
	SMTPTimeout   time.Duration
	From          string
	SubjectPrefix string
	AWSRegion     string
}

type VaultSettings struct {
	EncryptionKey   string
	KeyringDir      string
	KeyringPassword string
	RedisURL        string
}

type SessionSettings struct {
	Secret string
	MaxAge time.Duration
	Secure bool
}

type SchedulerSettings struct {
	Enabled bool
	Tick    time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "Outlook Relay")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("PORT", "8080")
	v.SetDefault("BASE_URL", "")

	v.SetDefault("DATABASE_URL", "relay.db")

	v.SetDefault("MICROSOFT_CLIENT_ID", "")
	v.SetDefault("MICROSOFT_CLIENT_SECRET", "")
	v.SetDefault("MICROSOFT_TENANT_ID", "common")
	v.SetDefault("MICROSOFT_REDIRECT_URI", "")
	v.SetDefault("MICROSOFT_AUTHORITY_URL", "")

	v.SetDefault("MAILBOX_BACKEND", "graph")
	v.SetDefault("GRAPH_API_URL", "https://graph.microsoft.com/v1.0")
	v.SetDefault("IMAP_ADDR", "outlook.office365.com:993")
	v.SetDefault("FETCH_PAGE_SIZE", 100)

	v.SetDefault("AI_API_URL", "")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_MODEL", "gpt-4")
	v.SetDefault("AI_SUMMARY_MAX_LENGTH", 200)
	v.SetDefault("AI_SUMMARY_TIMEOUT", "30s")
	v.SetDefault("AI_TRANSLATE_TIMEOUT", "60s")
	v.SetDefault("AI_LANGUAGES_FILE", "")

	v.SetDefault("RELAY_TRANSPORT", "smtp")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_USE_TLS", false)
	v.SetDefault("SMTP_TIMEOUT", "30s")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("RELAY_SUBJECT_PREFIX", "[Mail Relay]")
	v.SetDefault("AWS_REGION", "us-east-1")

	v.SetDefault("TOKEN_ENCRYPTION_KEY", "")
	v.SetDefault("TOKEN_KEYRING_DIR", "")
	v.SetDefault("TOKEN_KEYRING_PASSWORD", "outlook-relay-file-key")
	v.SetDefault("REDIS_URL", "")

	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_MAX_AGE", "168h")
	v.SetDefault("SESSION_SECURE", false)

	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_TICK", "5m")
}

// Load reads .env (if present) and the process environment.
func Load() (*Settings, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

// FromViper resolves settings from an already populated viper instance.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		App: AppSettings{
			Name:     v.GetString("APP_NAME"),
			Env:      strings.ToLower(v.GetString("APP_ENV")),
			LogLevel: v.GetString("LOG_LEVEL"),
			Host:     v.GetString("HOST"),
			Port:     v.GetString("PORT"),
			BaseURL:  strings.TrimRight(v.GetString("BASE_URL"), "/"),
		},
		Database: DatabaseSettings{URL: v.GetString("DATABASE_URL")},
		Microsoft: MicrosoftSettings{
			ClientID:     v.GetString("MICROSOFT_CLIENT_ID"),
			ClientSecret: v.GetString("MICROSOFT_CLIENT_SECRET"),
			TenantID:     v.GetString("MICROSOFT_TENANT_ID"),
			RedirectURI:  v.GetString("MICROSOFT_REDIRECT_URI"),
			AuthorityURL: strings.TrimRight(v.GetString("MICROSOFT_AUTHORITY_URL"), "/"),
		},
		Mailbox: MailboxSettings{
			Backend:  strings.ToLower(v.GetString("MAILBOX_BACKEND")),
			GraphURL: strings.TrimRight(v.GetString("GRAPH_API_URL"), "/"),
			IMAPAddr: v.GetString("IMAP_ADDR"),
			PageSize: v.GetInt("FETCH_PAGE_SIZE"),
		},
		AI: AISettings{
			APIURL:           strings.TrimRight(v.GetString("AI_API_URL"), "/"),
			APIKey:           v.GetString("AI_API_KEY"),
			Model:            v.GetString("AI_MODEL"),
			SummaryMaxLength: v.GetInt("AI_SUMMARY_MAX_LENGTH"),
			SummaryTimeout:   v.GetDuration("AI_SUMMARY_TIMEOUT"),
			TranslateTimeout: v.GetDuration("AI_TRANSLATE_TIMEOUT"),
			LanguagesFile:    v.GetString("AI_LANGUAGES_FILE"),
		},
		Relay: RelaySettings{
			Transport:     strings.ToLower(v.GetString("RELAY_TRANSPORT")),
			SMTPHost:      v.GetString("SMTP_HOST"),
			SMTPPort:      v.GetInt("SMTP_PORT"),
			SMTPUsername:  v.GetString("SMTP_USER"),
			SMTPPassword:  v.GetString("SMTP_PASSWORD"),
			SMTPUseTLS:    v.GetBool("SMTP_USE_TLS"),
			SMTPTimeout:   v.GetDuration("SMTP_TIMEOUT"),
			From:          v.GetString("SMTP_FROM"),
			SubjectPrefix: v.GetString("RELAY_SUBJECT_PREFIX"),
			AWSRegion:     v.GetString("AWS_REGION"),
		},
		Vault: VaultSettings{
			EncryptionKey:   v.GetString("TOKEN_ENCRYPTION_KEY"),
			KeyringDir:      v.GetString("TOKEN_KEYRING_DIR"),
			KeyringPassword: v.GetString("TOKEN_KEYRING_PASSWORD"),
			RedisURL:        v.GetString("REDIS_URL"),
		},
		Session: SessionSettings{
			Secret: v.GetString("SESSION_SECRET"),
			MaxAge: v.GetDuration("SESSION_MAX_AGE"),
			Secure: v.GetBool("SESSION_SECURE"),
		},
		Scheduler: SchedulerSettings{
			Enabled: v.GetBool("SCHEDULER_ENABLED"),
			Tick:    v.GetDuration("SCHEDULER_TICK"),
		},
	}

	if s.App.BaseURL == "" {
		s.App.BaseURL = "http://localhost:" + s.App.Port
	}
	if s.Microsoft.RedirectURI == "" {
		s.Microsoft.RedirectURI = s.App.BaseURL + "/auth/callback"
	}
	if s.Relay.From == "" {
		s.Relay.From = s.Relay.SMTPUsername
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch s.Mailbox.Backend {
	case "graph", "imap":
	default:
		return fmt.Errorf("MAILBOX_BACKEND must be graph or imap, got %q", s.Mailbox.Backend)
	}
	switch s.Relay.Transport {
	case "smtp", "ses":
	default:
		return fmt.Errorf("RELAY_TRANSPORT must be smtp or ses, got %q", s.Relay.Transport)
	}
	if s.Mailbox.PageSize <= 0 {
		return fmt.Errorf("FETCH_PAGE_SIZE must be positive, got %d", s.Mailbox.PageSize)
	}
	if s.AI.SummaryMaxLength <= 0 {
		return fmt.Errorf("AI_SUMMARY_MAX_LENGTH must be positive, got %d", s.AI.SummaryMaxLength)
	}
	if s.Session.MaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive")
	}
	if s.Scheduler.Tick <= 0 {
		return fmt.Errorf("SCHEDULER_TICK must be positive")
	}
	return nil
}

// AIConfigured reports whether the text backend has both URL and key.
func (a AISettings) AIConfigured() bool {
	return a.APIURL != "" && a.APIKey != ""
}

// IsProduction is true when APP_ENV is "production".
func (a AppSettings) IsProduction() bool {
	return a.Env == "production"
}
