package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/streamwatch/internal/api/respond"
	"github.com/albapepper/streamwatch/internal/cache"
	"github.com/albapepper/streamwatch/internal/store"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 200
)

// EventsCachePrefix is the cache key prefix of every recent-events listing
// of kind. Writers invalidate it after recording events.
func EventsCachePrefix(kind store.EventKind) string {
	return fmt.Sprintf("events:%s:", kind)
}

// GetRecentEvents lists the most recently detected change events.
// @Summary Recent change events
// @Description Returns the newest streaming or talent change events, newest first.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param kind path string true "Event kind" Enums(streaming, talent)
// @Param limit query int false "Maximum events (default 50, max 200)"
// @Success 200 {array} store.ChangeEvent
// @Success 304 "Not Modified"
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /events/{kind} [get]
func (h *Handler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	kind := store.EventKind(chi.URLParam(r, "kind"))
	if kind != store.KindStreaming && kind != store.KindTalent {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "Bad Request", "kind must be streaming or talent")
		return
	}
	limit := queryLimit(r, defaultEventsLimit, maxEventsLimit)

	cacheKey := fmt.Sprintf("%s%d", EventsCachePrefix(kind), limit)
	ttl := cache.TTLEvents

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	events, err := h.store.RecentEvents(r.Context(), kind, limit)
	if err != nil {
		h.logger.Error("Recent events query failed", "kind", kind, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	if events == nil {
		events = []store.ChangeEvent{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	etag := h.cache.Set(cacheKey, raw, ttl)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, raw, etag, ttl, false)
}
