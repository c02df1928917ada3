package docstore

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/auth"
)

// Handler exposes raw document access over HTTP. Every request runs as the
// authenticated caller, so the access rules apply exactly as they do to
// listeners. Denied requests are reported on the error emitter.
type Handler struct {
	client *Client
	errs   *apperr.Emitter
}

func NewHandler(client *Client, errs *apperr.Emitter) *Handler {
	return &Handler{client: client, errs: errs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/docs/*", h.Get)
	api.PUT("/docs/*", h.Set)
	api.POST("/docs/*", h.Add)
	api.DELETE("/docs/*", h.Delete)
	api.POST("/query", h.Query)
}

func (h *Handler) conn(c echo.Context) *Conn {
	ctx := c.Request().Context()
	actor := Actor{UID: auth.UserIDFromContext(ctx)}
	if claims := auth.ClaimsFromContext(ctx); claims != nil {
		actor.Anonymous = claims.Anonymous
	}
	return h.client.As(actor)
}

func (h *Handler) Get(c echo.Context) error {
	path := c.Param("*")
	snap, err := h.conn(c).Get(c.Request().Context(), path)
	if err != nil {
		return h.fail(err, apperr.OpGet, path, nil)
	}
	return c.JSON(http.StatusOK, snap)
}

// Set writes the request body to a document. ?merge=true merges it into the
// existing fields.
func (h *Handler) Set(c echo.Context) error {
	path := c.Param("*")
	var data map[string]any
	if err := c.Bind(&data); err != nil || data == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}
	opts := SetOptions{Merge: c.QueryParam("merge") == "true"}
	if err := h.conn(c).Set(c.Request().Context(), path, data, opts); err != nil {
		return h.fail(err, apperr.OpWrite, path, data)
	}
	snap, err := h.conn(c).Get(c.Request().Context(), path)
	if err != nil {
		return h.fail(err, apperr.OpGet, path, nil)
	}
	return c.JSON(http.StatusOK, snap)
}

// Add creates a document with a generated id in the collection at the path.
func (h *Handler) Add(c echo.Context) error {
	path := c.Param("*")
	var data map[string]any
	if err := c.Bind(&data); err != nil || data == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}
	id, err := h.conn(c).Add(c.Request().Context(), path, data)
	if err != nil {
		return h.fail(err, apperr.OpWrite, path, data)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id, "path": Join(path, id)})
}

func (h *Handler) Delete(c echo.Context) error {
	path := c.Param("*")
	if err := h.conn(c).Delete(c.Request().Context(), path); err != nil {
		return h.fail(err, apperr.OpWrite, path, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Query(c echo.Context) error {
	var q Query
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	snaps, err := h.conn(c).Query(c.Request().Context(), q)
	if err != nil {
		return h.fail(err, apperr.OpList, q.Collection, nil)
	}
	return c.JSON(http.StatusOK, snaps)
}

func (h *Handler) fail(err error, op apperr.Operation, path string, data map[string]any) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		pe := apperr.NewPermissionError(op, path, data)
		if h.errs != nil {
			h.errs.Emit(apperr.EventPermissionError, pe)
		}
		return echo.NewHTTPError(http.StatusForbidden, pe.Error())
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrInvalidQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
