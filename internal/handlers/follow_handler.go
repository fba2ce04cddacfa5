package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/core"
	"github.com/pulsefeed/core/internal/store"
)

// FollowHandler handles follow/unfollow HTTP requests
type FollowHandler struct {
	store store.Store
}

// NewFollowHandler creates a new FollowHandler
func NewFollowHandler(st store.Store) *FollowHandler {
	return &FollowHandler{store: st}
}

// RegisterFollowRoutes registers follow-related routes
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group) {
	g.POST("/users/:id/follow", h.FollowUser)
	g.DELETE("/users/:id/follow", h.UnfollowUser)
	g.GET("/users/:id/followers", h.GetFollowers)
	g.GET("/users/:id/following", h.GetFollowing)
	g.GET("/users/:id/counts", h.GetFollowCounts)
}

// FollowUser follows a user
func (h *FollowHandler) FollowUser(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	if err := svc.Follow(c.Request().Context(), c.Param("id")); err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"following": true}})
}

// UnfollowUser unfollows a user
func (h *FollowHandler) UnfollowUser(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	if err := svc.Unfollow(c.Request().Context(), c.Param("id")); err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"following": false}})
}

// GetFollowers lists a user's followers with profiles joined
func (h *FollowHandler) GetFollowers(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	followers, err := svc.Followers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"followers": followers}})
}

// GetFollowing lists the users a user follows, with profiles joined
func (h *FollowHandler) GetFollowing(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	following, err := svc.Following(c.Request().Context(), c.Param("id"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"following": following}})
}

// GetFollowCounts returns live follower and following counts for a user
func (h *FollowHandler) GetFollowCounts(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	followers, following, err := svc.FollowCounts(c.Request().Context(), c.Param("id"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"followers": followers, "following": following},
	})
}
