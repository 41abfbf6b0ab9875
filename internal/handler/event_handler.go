package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/service"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

const defaultDispatchLimit = 100

type eventDispatcher interface {
	DispatchPending(ctx context.Context, limit int) (service.DispatchReport, error)
}

// EventHandler lets admins flush the notification outbox by hand.
type EventHandler struct {
	dispatcher eventDispatcher
}

// NewEventHandler constructs the handler.
func NewEventHandler(dispatcher eventDispatcher) *EventHandler {
	return &EventHandler{dispatcher: dispatcher}
}

// DispatchPending godoc
// @Summary Deliver pending outbox events
// @Tags Admin
// @Produce json
// @Param limit query int false "Maximum events"
// @Success 200 {object} response.Envelope
// @Router /admin/events/dispatch [post]
func (h *EventHandler) DispatchPending(c *gin.Context) {
	limit := defaultDispatchLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	report, err := h.dispatcher.DispatchPending(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to dispatch pending events"))
		return
	}
	response.OK(c, report)
}
