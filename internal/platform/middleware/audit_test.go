package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func runAudit(t *testing.T, method, target string, uid string) (AuditEntry, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("User-Agent", "woundcare-test")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != "" {
		asUser(c, uid)
	}
	c.Set("request_id", "req-1")

	var got AuditEntry
	recorded := false
	rec2 := AuditRecorderFunc(func(entry AuditEntry) error {
		got = entry
		recorded = true
		return nil
	})
	h := Audit(zerolog.Nop(), rec2)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return got, recorded
}

func TestAudit_RecordsPatientAccess(t *testing.T) {
	id := "0b7c6a1e-3b1f-4f0e-9f3e-2a1d5c4b3a21"
	entry, ok := runAudit(t, http.MethodGet, "/api/v1/patients/"+id, "u1")
	if !ok {
		t.Fatal("expected an audit entry")
	}
	if entry.UserID != "u1" || entry.Resource != "patients" || entry.PatientID != id ||
		entry.Action != "read" || entry.RequestID != "req-1" || entry.StatusCode != http.StatusOK ||
		entry.UserAgent != "woundcare-test" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestAudit_SkipsNonAuditablePaths(t *testing.T) {
	for _, p := range []string{"/health", "/api/v1/auth/login", "/api/v1/ws", "/metrics"} {
		if _, ok := runAudit(t, http.MethodPost, p, ""); ok {
			t.Errorf("%s: expected no audit entry", p)
		}
	}
}

func TestAudit_PatientIDFromQuery(t *testing.T) {
	entry, _ := runAudit(t, http.MethodGet, "/api/v1/appointments?patientId=p1", "u1")
	if entry.PatientID != "p1" || entry.Resource != "appointments" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("%s: got %s, want %s", method, got, want)
		}
	}
}

func TestExtractResource(t *testing.T) {
	tests := map[string]string{
		"/api/v1/patients":                      "patients",
		"/api/v1/patients/123/wounds":           "patients",
		"/api/v1/docs/users/u1":                 "users",
		"/api/v1/docs/users/u1/reports":         "reports",
		"/api/v1/docs/users/u1/reports/r1":      "reports",
		"/api/v1/docs/users/u1/anamnesis/a1":    "anamnesis",
		"/api/v1/images/profile-pictures/i1/raw": "images",
		"/api/v1/":                               "unknown",
	}
	for path, want := range tests {
		if got := extractResource(path); got != want {
			t.Errorf("extractResource(%q) = %q, want %q", path, got, want)
		}
	}
}
