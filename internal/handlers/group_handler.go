package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/core"
	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
)

// GroupHandler handles group HTTP requests
type GroupHandler struct {
	store store.Store
}

// NewGroupHandler creates a new GroupHandler
func NewGroupHandler(st store.Store) *GroupHandler {
	return &GroupHandler{store: st}
}

// RegisterGroupRoutes registers group-related routes
func (h *GroupHandler) RegisterGroupRoutes(g *echo.Group) {
	g.GET("/groups", h.GetGroups)
	g.POST("/groups", h.CreateGroup)
}

// GetGroups lists the groups the current user belongs to
func (h *GroupHandler) GetGroups(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	groups, err := svc.Groups(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"groups": groups}})
}

// CreateGroup creates a new group with the current user as a member
func (h *GroupHandler) CreateGroup(c echo.Context) error {
	var req models.CreateGroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	svc := core.NewService(h.store, currentUserID(c))
	id, err := svc.CreateGroup(c.Request().Context(), req)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"id": id}})
}
