package records

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/genai"
)

type Handler struct {
	svc   *Service
	roles auth.RoleResolver
	errs  *apperr.Emitter
}

func NewHandler(svc *Service, roles auth.RoleResolver, errs *apperr.Emitter) *Handler {
	return &Handler{svc: svc, roles: roles, errs: errs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	anyRole := auth.RequireRole(h.roles, string(session.RoleProfessional), string(session.RolePatient))
	api.GET("/reports", h.ListReports, anyRole)

	pro := auth.RequireRole(h.roles, string(session.RoleProfessional))
	api.POST("/anamnesis", h.CreateAnamnesis, pro)
	api.GET("/anamnesis", h.ListAnamnesis, pro)
	api.POST("/reports", h.CreateReport, pro)
	api.GET("/reports/:id", h.GetReport, pro)
	api.POST("/comparisons", h.CompareReports, pro)
	api.GET("/comparisons", h.ListComparisons, pro)
	api.GET("/stats", h.Stats, pro)
}

type compareRequest struct {
	Report1ID string `json:"report1Id"`
	Report2ID string `json:"report2Id"`
}

func (h *Handler) CreateAnamnesis(c echo.Context) error {
	var rec AnamnesisRecord
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	uid := auth.UserIDFromContext(c.Request().Context())
	entry, err := h.svc.CreateAnamnesis(c.Request().Context(), uid, rec)
	if err != nil {
		return h.fail(err, apperr.OpWrite, docstore.Join(CollectionUsers, uid, CollectionAnamnesis))
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListAnamnesis(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	entries, err := h.svc.ListAnamnesis(c.Request().Context(), uid)
	if err != nil {
		return h.fail(err, apperr.OpList, docstore.Join(CollectionUsers, uid, CollectionAnamnesis))
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) CreateReport(c echo.Context) error {
	var rec ReportRecord
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	uid := auth.UserIDFromContext(c.Request().Context())
	entry, err := h.svc.CreateReport(c.Request().Context(), uid, rec)
	if err != nil {
		return h.fail(err, apperr.OpWrite, docstore.Join(CollectionUsers, uid, CollectionReports))
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListReports(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	role := session.Role(auth.RoleFromEcho(c))
	entries, err := h.svc.ListReports(c.Request().Context(), uid, role)
	if err != nil {
		path := docstore.Join(CollectionUsers, uid, CollectionReports)
		if role == session.RolePatient {
			path = CollectionReports
		}
		return h.fail(err, apperr.OpList, path)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetReport(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	id := c.Param("id")
	entry, err := h.svc.GetReport(c.Request().Context(), uid, id)
	if err != nil {
		return h.fail(err, apperr.OpGet, docstore.Join(CollectionUsers, uid, CollectionReports, id))
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) CompareReports(c echo.Context) error {
	var req compareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	uid := auth.UserIDFromContext(c.Request().Context())
	entry, err := h.svc.CompareReports(c.Request().Context(), uid, req.Report1ID, req.Report2ID)
	if err != nil {
		return h.fail(err, apperr.OpWrite, docstore.Join(CollectionUsers, uid, CollectionComparisons))
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListComparisons(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	entries, err := h.svc.ListComparisons(c.Request().Context(), uid)
	if err != nil {
		return h.fail(err, apperr.OpList, docstore.Join(CollectionUsers, uid, CollectionComparisons))
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Stats(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	st, err := h.svc.Stats(c.Request().Context(), uid)
	if err != nil {
		return h.fail(err, apperr.OpList, docstore.Join(CollectionUsers, uid))
	}
	return c.JSON(http.StatusOK, st)
}

// fail maps a service error to an HTTP error. Denied store operations are
// also reported on the error emitter.
func (h *Handler) fail(err error, op apperr.Operation, path string) error {
	return HTTPError(err, h.errs, op, path)
}

// HTTPError maps record, store and flow errors to HTTP errors. Permission
// denials are emitted on errs as a PermissionError for op on path.
func HTTPError(err error, errs *apperr.Emitter, op apperr.Operation, path string) error {
	var verr *genai.ValidationError
	var serr *genai.SchemaValidationError
	switch {
	case errors.Is(err, docstore.ErrPermissionDenied):
		pe := apperr.NewPermissionError(op, path, nil)
		if errs != nil {
			errs.Emit(apperr.EventPermissionError, pe)
		}
		return echo.NewHTTPError(http.StatusForbidden, pe.Error())
	case errors.Is(err, ErrInvalidRecord), errors.Is(err, docstore.ErrInvalidPath),
		errors.Is(err, docstore.ErrInvalidQuery), errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, genai.ErrModelUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &serr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
