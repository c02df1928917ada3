package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/woundcare/woundcare/internal/platform/auth"
	"github.com/woundcare/woundcare/pkg/pagination"
)

type staticRoles map[string]string

func (r staticRoles) ResolveRole(_ context.Context, uid string) (string, error) {
	return r[uid], nil
}

func newTestServer(svc *Service) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid := c.Request().Header.Get("X-Test-User"); uid != "" {
				claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}}
				c.SetRequest(c.Request().WithContext(auth.WithClaims(c.Request().Context(), claims, "t")))
			}
			return next(c)
		}
	})
	NewHandler(svc, staticRoles{"pro1": "professional", "pat1": "patient", "pat2": "patient"}).RegisterRoutes(api)
	return e
}

func send(e *echo.Echo, method, path, uid, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if uid != "" {
		req.Header.Set("X-Test-User", uid)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AppointmentFlow(t *testing.T) {
	svc, _ := newTestService()
	e := newTestServer(svc)

	rec := send(e, http.MethodPost, "/api/v1/appointments", "pro1",
		`{"patientId":"pat1","patientName":"Maria Silva","doctor":"Dr. Souza","date":"2024-06-11","time":"09:30"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.Status != StatusConfirmed {
		t.Errorf("expected Confirmed, got %q", a.Status)
	}

	if rec := send(e, http.MethodGet, "/api/v1/appointments/"+a.ID.String(), "pat1", ""); rec.Code != http.StatusOK {
		t.Fatalf("patient should read own appointment, got %d", rec.Code)
	}
	if rec := send(e, http.MethodGet, "/api/v1/appointments/"+a.ID.String(), "pat2", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("patient must not read others' appointments, got %d", rec.Code)
	}
	if rec := send(e, http.MethodPost, "/api/v1/appointments", "pat1", `{}`); rec.Code != http.StatusForbidden {
		t.Fatalf("patient must not create appointments, got %d", rec.Code)
	}

	rec = send(e, http.MethodGet, "/api/v1/appointments/upcoming", "pat2", "")
	var page pagination.Response
	json.Unmarshal(rec.Body.Bytes(), &page)
	if rec.Code != http.StatusOK || page.Total != 0 {
		t.Fatalf("expected no upcoming appointments for pat2, got %d %+v", rec.Code, page)
	}
	rec = send(e, http.MethodGet, "/api/v1/appointments", "pat1", "")
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 1 {
		t.Fatalf("expected one appointment for pat1, got %+v", page)
	}

	rec = send(e, http.MethodPut, "/api/v1/appointments/"+a.ID.String()+"/status", "pro1", `{"status":"Canceled"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = send(e, http.MethodPut, "/api/v1/appointments/"+a.ID.String()+"/status", "pro1", `{"status":"Completed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a canceled appointment, got %d", rec.Code)
	}

	if rec := send(e, http.MethodDelete, "/api/v1/appointments/"+a.ID.String(), "pro1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := send(e, http.MethodDelete, "/api/v1/appointments/"+a.ID.String(), "pro1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := send(e, http.MethodGet, "/api/v1/appointments/bad-id", "pro1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
