package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/albapepper/streamwatch/internal/api/respond"
	"github.com/albapepper/streamwatch/internal/checker"
	"github.com/albapepper/streamwatch/internal/store"
)

// RunStreamingCheck runs one streaming batch.
// @Summary Run a streaming availability check
// @Description Checks the hottest watchlisted titles for newly added providers and notifies their audience.
// @Tags checks
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Override the batch size"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /checks/streaming [post]
func (h *Handler) RunStreamingCheck(w http.ResponseWriter, r *http.Request) {
	h.runCheck(w, r, store.KindStreaming, h.runner.RunStreaming)
}

// RunTalentCheck runs one talent batch.
// @Summary Run a talent release check
// @Description Checks followed people for new credits and notifies their followers.
// @Tags checks
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Override the batch size"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /checks/talent [post]
func (h *Handler) RunTalentCheck(w http.ResponseWriter, r *http.Request) {
	h.runCheck(w, r, store.KindTalent, h.runner.RunTalent)
}

type runFunc func(ctx context.Context, limit int) (*checker.RunResult, error)

func (h *Handler) runCheck(w http.ResponseWriter, r *http.Request, kind store.EventKind, run runFunc) {
	// A run is not abandoned when the caller disconnects.
	ctx := context.WithoutCancel(r.Context())
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	res, err := run(ctx, queryLimit(r, 0, 0))
	if err != nil {
		h.logger.Error("Check run failed", "kind", kind, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	if res.Candidates == 0 {
		msg := "No items to check"
		if kind == store.KindTalent {
			msg = "No followed persons to check"
		}
		respond.WriteJSONObject(w, http.StatusOK, map[string]any{"message": msg, "checked": 0})
		return
	}

	if res.Recorded > 0 {
		h.cache.Invalidate(EventsCachePrefix(kind))
	}

	detectedField := "changes_detected"
	if kind == store.KindTalent {
		detectedField = "new_content_detected"
	}
	results := res.Results
	if results == nil {
		results = []checker.EntityResult{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"success":            true,
		"checked":            res.Checked,
		"skipped":            res.Skipped,
		detectedField:        res.Detected,
		"notifications_sent": res.NotificationsSent,
		"results":            results,
	})
}

// queryLimit reads a positive ?limit=, falling back to def and clamping to
// ceiling when ceiling is positive. Malformed values are ignored.
func queryLimit(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if ceiling > 0 && n > ceiling {
		return ceiling
	}
	return n
}
