package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	logger  *slog.Logger
	mode    string
	started time.Time
}

// NewHealthHandler creates a HealthHandler reporting the given operating
// mode ("detect", "server", or "full").
func NewHealthHandler(mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		mode:    mode,
		started: time.Now(),
	}
}

// HealthCheck reports liveness plus enough identity to tell deployments
// apart: service name, operating mode, and uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        "derivbot",
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
