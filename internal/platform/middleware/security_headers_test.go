package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

var wantSecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "0",
	"Content-Security-Policy":   "default-src 'none'; img-src 'self'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	"Permissions-Policy":        "camera=(), microphone=(), geolocation=()",
	"Cache-Control":             "no-store",
}

func assertSecurityHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	for header, want := range wantSecurityHeaders {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("header %s: got %q, want %q", header, got, want)
		}
	}
}

func TestSecurityHeaders_ReportListing(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/api/v1/reports", func(c echo.Context) error {
		return c.JSON(http.StatusOK, []map[string]any{{"id": "r1", "severity": "high"}})
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertSecurityHeaders(t, rec)
}

func TestSecurityHeaders_RawWoundImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/api/v1/images/:folder/:id/raw", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "image/png", png)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/images/wounds/img-1/raw", nil))

	if got := rec.Header().Get(echo.HeaderContentType); got != "image/png" {
		t.Errorf("expected the image content type to stand, got %q", got)
	}
	if rec.Body.Len() != len(png) {
		t.Errorf("expected %d image bytes, got %d", len(png), rec.Body.Len())
	}
	assertSecurityHeaders(t, rec)
}

func TestSecurityHeaders_DeniedRequest(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/api/v1/docs/*", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "missing or insufficient permissions")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/docs/users/someone-else", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	assertSecurityHeaders(t, rec)
}
