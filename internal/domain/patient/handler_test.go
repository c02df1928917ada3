package patient

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
	"github.com/woundcare/woundcare/internal/platform/genai"
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
	NewHandler(svc, staticRoles{"pro1": "professional", "pat1": "patient"}).RegisterRoutes(api)
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

func TestHandler_PatientLifecycle(t *testing.T) {
	svc, _, _, _ := newTestService()
	e := newTestServer(svc)

	rec := send(e, http.MethodPost, "/api/v1/patients", "pro1", `{"name":"Maria Silva","age":67,"riskLevel":"Medium"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)

	rec = send(e, http.MethodPost, "/api/v1/patients/"+p.ID.String()+"/wounds", "pro1", `{"notes":"Lesao sacral"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var w WoundEntry
	json.Unmarshal(rec.Body.Bytes(), &w)

	rec = send(e, http.MethodPost, "/api/v1/patients/"+p.ID.String()+"/wounds/"+w.ID.String()+"/assessment", "pro1",
		`{"notes":"Sem exsudato","photoDataUri":"`+photo+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = send(e, http.MethodGet, "/api/v1/patients/"+p.ID.String(), "pro1", "")
	var full Patient
	json.Unmarshal(rec.Body.Bytes(), &full)
	if len(full.Wounds) != 1 || full.Wounds[0].AIAssessment == nil || full.LastVisit == nil {
		t.Fatalf("expected assessed wound and last visit, got %+v", full)
	}

	rec = send(e, http.MethodGet, "/api/v1/patients?limit=10", "pro1", "")
	var page pagination.Response
	json.Unmarshal(rec.Body.Bytes(), &page)
	if rec.Code != http.StatusOK || page.Total != 1 || page.Limit != 10 {
		t.Fatalf("unexpected list response %d %+v", rec.Code, page)
	}

	if rec := send(e, http.MethodDelete, "/api/v1/patients/"+p.ID.String(), "pro1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := send(e, http.MethodGet, "/api/v1/patients/"+p.ID.String(), "pro1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestHandler_Errors(t *testing.T) {
	svc, _, _, ai := newTestService()
	e := newTestServer(svc)

	tests := []struct {
		name   string
		method string
		path   string
		uid    string
		body   string
		want   int
	}{
		{"patient role rejected", http.MethodGet, "/api/v1/patients", "pat1", "", http.StatusForbidden},
		{"no caller", http.MethodGet, "/api/v1/patients", "", "", http.StatusUnauthorized},
		{"bad id", http.MethodGet, "/api/v1/patients/nope", "pro1", "", http.StatusBadRequest},
		{"invalid patient", http.MethodPost, "/api/v1/patients", "pro1", `{"name":""}`, http.StatusBadRequest},
		{"assessment without photo", http.MethodPost,
			"/api/v1/patients/00000000-0000-0000-0000-000000000001/wounds/00000000-0000-0000-0000-000000000002/assessment",
			"pro1", `{"notes":"n"}`, http.StatusBadRequest},
		{"summary without images", http.MethodPost,
			"/api/v1/patients/00000000-0000-0000-0000-000000000001/progress-summary",
			"pro1", `{"notes":"n"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := send(e, tt.method, tt.path, tt.uid, tt.body); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	ai.err = genai.ErrModelUnavailable
	rec := send(e, http.MethodPost, "/api/v1/patients/00000000-0000-0000-0000-000000000001/progress-summary",
		"pro1", `{"notes":"n","images":["`+photo+`"]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the model is unavailable, got %d", rec.Code)
	}
}
