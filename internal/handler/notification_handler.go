package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

const maxNotificationLimit = 200

type notificationLister interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

// NotificationHandler serves the caller's delivered interview notifications.
type NotificationHandler struct {
	store notificationLister
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(store notificationLister) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// List godoc
// @Summary The caller's notifications, newest first
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum notifications"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := actingUser(c)
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxNotificationLimit {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be between 1 and "+strconv.Itoa(maxNotificationLimit)))
			return
		}
		limit = parsed
	}

	items, err := h.store.ListNotifications(c.Request.Context(), actor.ID, limit)
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to list notifications"))
		return
	}
	response.OK(c, items, map[string]interface{}{"total": len(items)})
}
