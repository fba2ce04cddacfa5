package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/core"
	"github.com/pulsefeed/core/internal/models"
	"github.com/pulsefeed/core/internal/store"
)

// PostHandler handles post-related HTTP requests
type PostHandler struct {
	store store.Store
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(st store.Store) *PostHandler {
	return &PostHandler{store: st}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.GET("/posts/:post_id", h.GetPost)
}

// CreatePost creates a new post authored by the current user
func (h *PostHandler) CreatePost(c echo.Context) error {
	var req models.CreatePostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	svc := core.NewService(h.store, currentUserID(c))
	id, err := svc.CreatePost(c.Request().Context(), req)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"data":    echo.Map{"id": id},
	})
}

// GetPost retrieves a single post by ID
func (h *PostHandler) GetPost(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	post, err := svc.Post(c.Request().Context(), c.Param("post_id"))
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"post": post},
	})
}
