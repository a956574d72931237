// Package server assembles the HTTP router.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/auth"
	"github.com/pysugar/outlook-relay/internal/auth/microsoft"
	"github.com/pysugar/outlook-relay/internal/auth/session"
	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/logging"
	"github.com/pysugar/outlook-relay/internal/server/handlers"
)

// Deps are the collaborators the routes need.
type Deps struct {
	AppName  string
	DB       *gorm.DB
	Sessions *session.Store
	Tokens   *token.Manager
	Auth     *microsoft.Handler
	Passes   handlers.Passes
	Log      logging.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestLogger(d.Log))
	r.Use(chimiddleware.Recoverer)
	r.Use(d.Sessions.Middleware)

	r.Get("/", handlers.IndexHandler(d.AppName))
	r.Get("/health", handlers.HealthHandler(d.AppName))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", d.Auth.Login)
		r.Get("/callback", d.Auth.Callback)
		r.Get("/logout", d.Auth.Logout)
	})

	requireUser := auth.RequireUser(d.DB, d.Tokens)
	r.With(requireUser).Get("/dashboard", handlers.DashboardHandler(d.DB, d.AppName))

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/messages", handlers.ListMessagesHandler(d.DB))
		r.Get("/messages/{id}", handlers.GetMessageHandler(d.DB))
		r.Delete("/messages/{id}", handlers.DeleteMessageHandler(d.DB))

		r.Post("/fetch", handlers.FetchHandler(d.DB, d.Passes))
		r.Post("/process", handlers.ProcessHandler(d.DB, d.Passes))

		r.Get("/config", handlers.GetConfigHandler(d.DB))
		r.Put("/config", handlers.UpdateConfigHandler(d.DB))

		r.Get("/logs", handlers.LogsHandler(d.DB))
	})

	return r
}

// NewHTTPServer wraps handler with conservative timeouts. Writes get a long
// budget because fetch and process run inside the request.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
