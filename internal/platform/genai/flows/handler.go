package flows

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/woundcare/woundcare/internal/platform/genai"
)

// Handler exposes the flows over HTTP. Every route runs behind guard.
type Handler struct {
	flows *Flows
	guard []echo.MiddlewareFunc
}

func NewHandler(flows *Flows, guard ...echo.MiddlewareFunc) *Handler {
	return &Handler{flows: flows, guard: guard}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/ai", h.guard...)
	g.POST("/risk-assessment", h.AssessRisk)
	g.POST("/progress-summary", h.SummarizeProgress)
	g.POST("/compare-reports", h.CompareReports)
}

func (h *Handler) AssessRisk(c echo.Context) error {
	var in RiskInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.flows.AssessRisk(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) SummarizeProgress(c echo.Context) error {
	var in SummaryInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.flows.SummarizeProgress(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CompareReports(c echo.Context) error {
	var in CompareInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.flows.CompareReports(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// HTTPError maps a flow error to an HTTP error.
func HTTPError(err error) error {
	var verr *genai.ValidationError
	var serr *genai.SchemaValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, genai.ErrModelUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &serr):
		return echo.NewHTTPError(http.StatusBadGateway, serr.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, "model request failed")
	}
}
