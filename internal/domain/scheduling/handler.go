package scheduling

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/pkg/pagination"
)

type Handler struct {
	svc   *Service
	roles auth.RoleResolver
}

func NewHandler(svc *Service, roles auth.RoleResolver) *Handler {
	return &Handler{svc: svc, roles: roles}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints: professionals see every appointment, patients their own.
	readGroup := api.Group("/appointments", auth.RequireRole(h.roles, string(session.RoleProfessional), string(session.RolePatient)))
	readGroup.GET("", h.ListAppointments)
	readGroup.GET("/upcoming", h.ListUpcoming)
	readGroup.GET("/:id", h.GetAppointment)

	writeGroup := api.Group("/appointments", auth.RequireRole(h.roles, string(session.RoleProfessional)))
	writeGroup.POST("", h.CreateAppointment)
	writeGroup.PUT("/:id", h.UpdateAppointment)
	writeGroup.PUT("/:id/status", h.SetStatus)
	writeGroup.DELETE("/:id", h.DeleteAppointment)
}

type statusRequest struct {
	Status Status `json:"status"`
}

func isPatient(c echo.Context) bool {
	return auth.RoleFromEcho(c) == string(session.RolePatient)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if isPatient(c) && a.PatientID != auth.UserIDFromContext(c.Request().Context()) {
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	var (
		items []*Appointment
		total int
		err   error
	)
	switch patientID := c.QueryParam("patient_id"); {
	case isPatient(c):
		items, total, err = h.svc.ListByPatient(ctx, auth.UserIDFromContext(ctx), pg.Limit, pg.Offset)
	case patientID != "":
		items, total, err = h.svc.ListByPatient(ctx, patientID, pg.Limit, pg.Offset)
	default:
		items, total, err = h.svc.ListAppointments(ctx, pg.Limit, pg.Offset)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, pg.Limit, pg.Offset))
}

func (h *Handler) ListUpcoming(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUpcoming(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if isPatient(c) {
		uid := auth.UserIDFromContext(c.Request().Context())
		own := items[:0]
		for _, a := range items {
			if a.PatientID == uid {
				own = append(own, a)
			}
		}
		items, total = own, len(own)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.UpdateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func nonNil(items []*Appointment) []*Appointment {
	if items == nil {
		return []*Appointment{}
	}
	return items
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
