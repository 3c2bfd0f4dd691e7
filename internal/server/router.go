// Package server assembles the HTTP router.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ayush/tasktracker/backend/internal/auth"
	"github.com/ayush/tasktracker/backend/internal/httpx"
	"github.com/ayush/tasktracker/backend/internal/middleware"
	"github.com/ayush/tasktracker/backend/internal/tasks"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Auth           *auth.Handler
	Tasks          *tasks.Handler
	Tokens         middleware.TokenVerifier
	Metrics        *middleware.Metrics
	MetricsHandler http.Handler
	// Limiter guards forgot-password and recover-email when set.
	Limiter             middleware.Limiter
	RecoverEmailEnabled bool
	// TrustProxyHeaders rewrites RemoteAddr from proxy headers. Off, the
	// rate limiter and audit log see the peer address.
	TrustProxyHeaders bool
	AllowedOrigins      []string
}

// NewRouter builds the full route tree.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if d.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Handler)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := middleware.RequireAuth(d.Tokens, d.Logger)
	limited := func(h http.HandlerFunc) http.Handler { return h }
	if d.Limiter != nil {
		rl := middleware.RateLimit(d.Limiter, d.Logger)
		limited = func(h http.HandlerFunc) http.Handler { return rl(h) }
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	// Auth routes
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", d.Auth.Register)
		r.Post("/login", d.Auth.Login)
		r.Method(http.MethodPost, "/forgot-password", limited(d.Auth.ForgotPassword))
		r.Post("/reset-password", d.Auth.ResetPassword)
		if d.RecoverEmailEnabled {
			r.Method(http.MethodPost, "/recover-email", limited(d.Auth.RecoverEmail))
		}
		r.With(requireAuth).Put("/change-password", d.Auth.ChangePassword)
		r.With(requireAuth).Get("/me", d.Auth.Me)
	})

	// Task routes (protected)
	r.Route("/api/tasks", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", d.Tasks.Create)
		r.Get("/", d.Tasks.List)
		r.Post("/export", d.Tasks.Export)
		r.Get("/export", d.Tasks.DownloadExport)
		r.Put("/{id}", d.Tasks.Update)
		r.Delete("/{id}", d.Tasks.Delete)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteMessage(w, http.StatusNotFound, "Route not found")
	})

	return r
}
