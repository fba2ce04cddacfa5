package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/core"
	"github.com/pulsefeed/core/internal/store"
)

// currentUserID returns the Firebase UID set by the auth middleware.
func currentUserID(c echo.Context) string {
	uid, _ := c.Get("firebaseUID").(string)
	return uid
}

// serviceError maps core and store errors onto HTTP responses. Partial
// writes report which side landed so the caller can decide on retry.
func serviceError(err error) error {
	var partial *core.PartialWriteError
	switch {
	case errors.As(err, &partial):
		return echo.NewHTTPError(http.StatusInternalServerError, echo.Map{
			"error":   "partial write",
			"op":      partial.Op,
			"applied": partial.Done,
			"cause":   partial.Err.Error(),
		})
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, core.ErrSelfFollow):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// streamJSON writes each update as one server-sent event until the channel
// closes or the client disconnects.
func streamJSON[T any](c echo.Context, updates <-chan T) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(update)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return err
			}
			w.Flush()
		}
	}
}
