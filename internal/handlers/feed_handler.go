package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/core"
	"github.com/pulsefeed/core/internal/store"
)

// FeedHandler streams merged feed views over server-sent events.
type FeedHandler struct {
	store store.Store
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(st store.Store) *FeedHandler {
	return &FeedHandler{store: st}
}

// RegisterFeedRoutes registers feed-related routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed", h.StreamFeed)
	g.GET("/groups/:group_id/feed", h.StreamGroupFeed)
}

// StreamFeed streams the home feed: public posts, posts shared with the
// user, and posts from every joined group, merged into one sequence. The
// stream lives as long as the request; disconnecting closes the scope.
func (h *FeedHandler) StreamFeed(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))
	ctx := c.Request().Context()

	groupIDs, err := svc.GroupIDs(ctx)
	if err != nil {
		return serviceError(err)
	}

	scope := core.HomeScope(svc.Self(), groupIDs)
	stream, err := svc.OpenFeed(ctx, scope)
	if err != nil {
		return serviceError(err)
	}
	defer svc.CloseFeed(scope.Name)

	return streamJSON(c, stream.Updates())
}

// StreamGroupFeed streams a single group's feed.
func (h *FeedHandler) StreamGroupFeed(c echo.Context) error {
	svc := core.NewService(h.store, currentUserID(c))

	scope := core.GroupScope(c.Param("group_id"))
	stream, err := svc.OpenFeed(c.Request().Context(), scope)
	if err != nil {
		return serviceError(err)
	}
	defer svc.CloseFeed(scope.Name)

	return streamJSON(c, stream.Updates())
}
