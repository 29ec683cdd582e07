package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks one dependency's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process liveness and dependency health.
type HealthHandler struct {
	db            Pinger
	cache         Pinger
	streamHealthy func() bool // nil when streaming is disabled
	startedAt     time.Time
}

// NewHealthHandler creates a HealthHandler. streamHealthy may be nil.
func NewHealthHandler(db, cache Pinger, streamHealthy func() bool) *HealthHandler {
	return &HealthHandler{
		db:            db,
		cache:         cache,
		streamHealthy: streamHealthy,
		startedAt:     time.Now().UTC(),
	}
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}
	if err := h.cache.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}
	if h.streamHealthy != nil {
		if h.streamHealthy() {
			checks["stream"] = "ok"
		} else {
			// A down stream degrades quotes to REST polling; not fatal.
			checks["stream"] = "disconnected"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	writeJSON(w, status, map[string]any{
		"status": state,
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
		"checks": checks,
	})
}
