package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/core"
	"github.com/pulsefeed/core/internal/store"
)

// NotificationHandler handles notification HTTP requests
type NotificationHandler struct {
	store store.Store
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(st store.Store) *NotificationHandler {
	return &NotificationHandler{store: st}
}

// RegisterNotificationRoutes registers notification-related routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.StreamNotifications)
	g.POST("/notifications/:id/read", h.MarkRead)
	g.POST("/notifications/read-all", h.MarkAllRead)
}

// StreamNotifications streams the current user's notifications, newest
// first, with sender profiles joined in.
func (h *NotificationHandler) StreamNotifications(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	stream, err := svc.OpenNotifications(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	defer svc.CloseNotifications()

	return streamJSON(c, stream.Updates())
}

// MarkRead marks a single notification as read
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	if err := svc.MarkNotificationRead(c.Request().Context(), c.Param("id")); err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Notification marked as read"})
}

// MarkAllRead marks every unread notification as read
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	if err := svc.MarkAllNotificationsRead(c.Request().Context()); err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "All notifications marked as read"})
}
