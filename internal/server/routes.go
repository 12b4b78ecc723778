package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// middlewareStack returns the router middlewares in order. Logging wraps
// Recovery so a recovered panic still gets its access log line.
func middlewareStack(logger *slog.Logger, cfg Config) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID,
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewareStack(logger, cfg)...)

	r.Get("/health", h.Health)
	r.Get("/", h.Index)

	r.Post("/uploads", h.Upload)
	r.Post("/uploads/{id}/delete", h.DeleteUpload)
	r.Post("/clips/{id}/trim", h.Trim)
	r.Post("/clips/{id}/move", h.Move)
	r.Post("/render", h.Render)

	r.Get("/artifacts/{kind}/{name}", h.Artifact)

	return r
}
