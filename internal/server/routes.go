package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins. Empty means
	// same-origin only.
	AllowedOrigins []string
}

// DefaultConfig returns a Config that allows no cross-origin access.
func DefaultConfig() Config {
	return Config{}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/state", h.State)
	mux.HandleFunc("GET /api/events", h.Events)
	mux.HandleFunc("POST /api/engine/load", h.LoadEngine)
	mux.HandleFunc("PUT /api/file", h.SelectFile)
	mux.HandleFunc("DELETE /api/file", h.ClearFile)
	mux.HandleFunc("PUT /api/duration", h.SetDuration)
	mux.HandleFunc("GET /api/runs", h.ListRuns)
	mux.HandleFunc("POST /api/runs", h.StartRun)
	mux.HandleFunc("GET /api/runs/{id}", h.GetRun)
	mux.HandleFunc("GET /api/segments.zip", h.GetArchive)
	mux.HandleFunc("GET /api/segments/{name}", h.GetSegment)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
