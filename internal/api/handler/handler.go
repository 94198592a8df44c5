// Package handler provides HTTP handlers for all API endpoints.
// Handlers are thin: they decode the request, call the checker, the
// delivery gate or the store, and encode the result.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/streamwatch/internal/api/respond"
	"github.com/albapepper/streamwatch/internal/cache"
	"github.com/albapepper/streamwatch/internal/checker"
	"github.com/albapepper/streamwatch/internal/delivery"
	"github.com/albapepper/streamwatch/internal/store"
)

// Runner executes batch runs.
type Runner interface {
	RunStreaming(ctx context.Context, limit int) (*checker.RunResult, error)
	RunTalent(ctx context.Context, limit int) (*checker.RunResult, error)
}

// Sender delivers one notification to one user.
type Sender interface {
	Deliver(ctx context.Context, req delivery.Request) (delivery.Result, error)
}

// Store is the read side the handlers need.
type Store interface {
	RecentEvents(ctx context.Context, kind store.EventKind, limit int) ([]store.ChangeEvent, error)
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	runner Runner
	sender Sender
	store  Store
	cache  *cache.Cache
	logger *slog.Logger

	runTimeout time.Duration
}

// New creates a Handler with shared dependencies.
func New(runner Runner, sender Sender, st Store, c *cache.Cache, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, sender: sender, store: st, cache: c, logger: logger}
}

// WithRunTimeout bounds every check run started over HTTP. Zero leaves
// runs unbounded.
func (h *Handler) WithRunTimeout(d time.Duration) *Handler {
	h.runTimeout = d
	return h
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "Streamwatch API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies store connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
