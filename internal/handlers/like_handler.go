package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/core"
	"github.com/pulsefeed/core/internal/store"
)

// LikeHandler handles HTTP requests related to likes
type LikeHandler struct {
	store store.Store
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(st store.Store) *LikeHandler {
	return &LikeHandler{store: st}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group) {
	g.POST("/posts/:post_id/like", h.ToggleLike)
}

// ToggleLike flips the current user's like on a post. Liking someone
// else's post also fans out one like notification to the author.
func (h *LikeHandler) ToggleLike(c echo.Context) error {
	postID := c.Param("post_id")
	svc := core.NewService(h.store, currentUserID(c))

	liked, err := svc.ToggleLike(c.Request().Context(), postID)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"post_id": postID, "liked": liked},
	})
}
