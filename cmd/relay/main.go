package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/outlook-relay/internal/auth/microsoft"
	"github.com/pysugar/outlook-relay/internal/auth/session"
	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/config"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/mailbox"
	"github.com/pysugar/outlook-relay/internal/pipeline"
	"github.com/pysugar/outlook-relay/internal/relay"
	"github.com/pysugar/outlook-relay/internal/scheduler"
	"github.com/pysugar/outlook-relay/internal/server"
	"github.com/pysugar/outlook-relay/internal/transform"
	"github.com/pysugar/outlook-relay/internal/vault"
	"github.com/pysugar/outlook-relay/internal/version"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Get().Fatal("Invalid configuration", err)
	}

	env := "development"
	if cfg.App.Env == "production" {
		env = "production"
	}
	log := logging.Init(logging.Config{
		Level:       logging.Level(cfg.App.LogLevel),
		Environment: env,
		Version:     version.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	database, err := db.InitDB(cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to initialize database", err)
	}

	// Token vault
	cipher, err := vault.LoadCipher(vault.KeyOptions{
		Secret:          cfg.Vault.EncryptionKey,
		KeyringDir:      cfg.Vault.KeyringDir,
		KeyringPassword: cfg.Vault.KeyringPassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to load token encryption key", err)
	}
	var cache vault.Cache = vault.NewMemoryCache()
	if cfg.Vault.RedisURL != "" {
		redisCache, err := vault.NewRedisCache(ctx, cfg.Vault.RedisURL, cipher, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis token cache", err)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	// Auth
	if cfg.Microsoft.ClientID == "" {
		log.Warn("MICROSOFT_CLIENT_ID is not set; sign-in will fail")
	}
	oauth := microsoft.OAuthConfig(microsoft.Settings{
		ClientID:     cfg.Microsoft.ClientID,
		ClientSecret: cfg.Microsoft.ClientSecret,
		TenantID:     cfg.Microsoft.TenantID,
		RedirectURI:  cfg.Microsoft.RedirectURI,
		AuthorityURL: cfg.Microsoft.AuthorityURL,
	})
	tokens := token.NewManager(database, cipher, cache, oauth, nil, log)
	sessions := session.NewStore(database, session.Options{
		Secret: cfg.Session.Secret,
		MaxAge: cfg.Session.MaxAge,
		Secure: cfg.Session.Secure,
	}, log)
	authHandler := microsoft.NewHandler(oauth, tokens, database, cfg.Mailbox.GraphURL, nil)

	// Mailbox, transform, relay
	mailboxes := mailbox.NewFactory(mailbox.FactoryConfig{
		Backend:  cfg.Mailbox.Backend,
		GraphURL: cfg.Mailbox.GraphURL,
		IMAPAddr: cfg.Mailbox.IMAPAddr,
		Timeout:  30 * time.Second,
	})

	languages, err := transform.LoadLanguages(cfg.AI.LanguagesFile)
	if err != nil {
		log.Fatal("Failed to load language catalog", err)
	}
	var provider *transform.Provider
	if cfg.AI.APIURL != "" && cfg.AI.APIKey != "" {
		provider = transform.NewProvider(cfg.AI.APIKey, cfg.AI.APIURL, cfg.AI.Model)
	} else {
		log.Info("Text backend not configured; summaries truncate and translations pass through")
	}
	transformer := transform.New(provider, transform.Options{
		SummaryMaxLength: cfg.AI.SummaryMaxLength,
		SummaryTimeout:   cfg.AI.SummaryTimeout,
		TranslateTimeout: cfg.AI.TranslateTimeout,
		Languages:        languages,
	}, log)

	var transport relay.Transport
	switch cfg.Relay.Transport {
	case "ses":
		sesTransport, err := relay.NewSESTransport(ctx, cfg.Relay.AWSRegion)
		if err != nil {
			log.Fatal("Failed to configure SES transport", err)
		}
		transport = sesTransport
	default:
		transport = relay.NewSMTPTransport(relay.SMTPConfig{
			Host:        cfg.Relay.SMTPHost,
			Port:        cfg.Relay.SMTPPort,
			Username:    cfg.Relay.SMTPUsername,
			Password:    cfg.Relay.SMTPPassword,
			ImplicitTLS: cfg.Relay.SMTPUseTLS,
			Timeout:     cfg.Relay.SMTPTimeout,
		})
	}
	sender := relay.NewSender(transport, cfg.Relay.From, cfg.Relay.SubjectPrefix, log)

	passes := pipeline.New(database, tokens, mailboxes, transformer, sender, pipeline.Options{
		PageSize: cfg.Mailbox.PageSize,
	}, log)

	// Background scheduler
	if cfg.Scheduler.Enabled {
		go scheduler.New(database, passes, sessions, cfg.Scheduler.Tick, log).Run(ctx)
	}

	// HTTP
	router := server.NewRouter(server.Deps{
		AppName:  cfg.App.Name,
		DB:       database,
		Sessions: sessions,
		Tokens:   tokens,
		Auth:     authHandler,
		Passes:   passes,
		Log:      log,
	})
	srv := server.NewHTTPServer(cfg.App.Addr(), router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Graceful shutdown failed", err)
		}
	}()

	log.Info("Starting server",
		logging.String("addr", cfg.App.Addr()),
		logging.String("base_url", cfg.App.BaseURL),
		logging.String("mailbox", cfg.Mailbox.Backend),
		logging.String("relay", cfg.Relay.Transport),
		logging.String("version", version.String()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server failed", err)
	}
	log.Info("Server stopped")
}
