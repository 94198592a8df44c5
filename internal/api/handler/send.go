package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/albapepper/streamwatch/internal/api/respond"
	"github.com/albapepper/streamwatch/internal/delivery"
)

const maxSendBody = 64 << 10

// SendNotification delivers one notification to one user through the gate.
// @Summary Send a notification
// @Description Applies the user's preferences, writes the in-app log entry and pushes to every registered device.
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body delivery.Request true "Notification"
// @Success 200 {object} delivery.Result
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /notifications/send [post]
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req delivery.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSendBody))
	if err := dec.Decode(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "Bad Request", "invalid JSON body: "+err.Error())
		return
	}

	res, err := h.sender.Deliver(r.Context(), req)
	switch {
	case errors.Is(err, delivery.ErrInvalidRequest):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	case err != nil:
		h.logger.Error("Send failed", "user_id", req.UserID, "category", req.Category, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, res)
}
