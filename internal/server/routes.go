package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Recorder receives per-request metrics when set.
	Recorder HTTPRecorder
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	mux.HandleFunc("GET /v1/providers", h.ListProviders)

	mux.HandleFunc("POST /v1/jobs", h.CreateJob)
	mux.HandleFunc("GET /v1/jobs", h.ListJobs)
	mux.HandleFunc("GET /v1/jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /v1/jobs/{id}", h.DeleteJob)
	mux.HandleFunc("POST /v1/jobs/{id}/wait", h.WaitJob)
	mux.HandleFunc("POST /v1/jobs/{id}/cancel", h.CancelJob)

	mux.HandleFunc("POST /v1/firefly/uploads", h.UploadImage)
	mux.HandleFunc("GET /v1/audiovideo/voices", h.ListVoices)
	mux.HandleFunc("GET /v1/audiovideo/avatars", h.ListAvatars)
	mux.HandleFunc("POST /v1/substance/spaces", h.CreateSpace)

	mux.HandleFunc("POST /v1/storage/presign", h.Presign)
	mux.HandleFunc("PUT /v1/storage/objects/{key...}", h.PutObject)

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	}
	if cfg.Recorder != nil {
		middlewares = append(middlewares, MetricsMiddleware(cfg.Recorder))
	}

	return ChainMiddleware(middlewares...)(mux)
}
