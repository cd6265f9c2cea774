package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency whose reachability is reported by the health check.
type Pinger func(ctx context.Context) error

// HealthHandler serves liveness and status endpoints.
type HealthHandler struct {
	engine    Engine
	checks    map[string]Pinger
	mode      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks name the backing
// services (database, redis, s3) to probe.
func NewHealthHandler(engine Engine, checks map[string]Pinger, mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		checks:    checks,
		mode:      mode,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// HealthCheck reports each dependency and answers 503 when any is down.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"status":       http.StatusText(status),
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Status reports the process mode and the engine's scheduler phase.
// GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.State(r.Context())
	if err != nil {
		writeEngineError(w, r, h.logger, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"phase":          st.Phase(),
		"current_epoch":  st.CurrentEpoch,
		"paused":         st.Paused,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
