package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/core"
	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
)

// UserHandler handles user profile HTTP requests
type UserHandler struct {
	store store.Store
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(st store.Store) *UserHandler {
	return &UserHandler{store: st}
}

// RegisterUserRoutes registers user-related routes
func (h *UserHandler) RegisterUserRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.UpdateProfile)
	g.GET("/users/:id", h.GetUser)
}

// GetProfile returns the current user's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	profile, err := svc.Profile(c.Request().Context(), svc.Self())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"user": profile}})
}

// UpdateProfile updates the current user's profile
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req models.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	svc := core.NewService(h.store, currentUserID(c))
	if err := svc.UpdateProfile(c.Request().Context(), req); err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Profile updated successfully"})
}

// GetUser returns another user's public profile
func (h *UserHandler) GetUser(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	profile, err := svc.Profile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"user": profile}})
}
