// Package http serves the ops surface: health, metrics, and the live mirror
// document for the map web-app.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geowarn/internal/mirror"
	"geowarn/internal/sighting"
)

// HealthChecker reports on an optional backing dependency. The redis client
// satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler is the thin HTTP layer; it reads store state and never mutates it.
type Handler struct {
	store  *sighting.Store
	health HealthChecker // nil when redis is not configured
	logger *slog.Logger
}

// NewHandler creates the ops handler.
func NewHandler(store *sighting.Store, health HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{store: store, health: health, logger: logger}
}

// NewRouter wires the ops endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(15 * time.Second))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/locations.json", h.handleLocations)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			status = map[string]string{"status": "degraded", "redis": err.Error()}
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

// handleLocations serves the same document the mirror pushes, straight from
// the store, so the web-app can read live data without hitting GitHub.
func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	doc := mirror.BuildDocument(h.store.Snapshot(), time.Now())
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
