package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks a dependency; *db.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. database may be nil when the
// complaint API is disabled.
func NewHealthHandler(database Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: database, logger: logger}
}

// Ping handles GET /ping.
func (hh *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("pong"))
}

// Healthz handles GET /healthz.
func (hh *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "disabled"}
	if hh.db == nil {
		writeJSON(w, http.StatusOK, status)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := hh.db.PingContext(ctx); err != nil {
		hh.logger.WarnContext(r.Context(), "health check failed", "err", err)
		status["status"] = "unavailable"
		status["database"] = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["database"] = "ok"
	writeJSON(w, http.StatusOK, status)
}
