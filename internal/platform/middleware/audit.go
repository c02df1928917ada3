package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/platform/auth"
)

// AuditEntry records who accessed which clinical data, when and how.
type AuditEntry struct {
	UserID     string
	Role       string
	Resource   string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every access to patient data under /api/v1 as a structured
// "phi_access" event and hands it to recorder when one is given.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(req.Context()),
				Role:       auth.RoleFromEcho(c),
				Resource:   extractResource(path),
				PatientID:  extractPatientID(c),
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				RequestID:  requestID(c),
				StatusCode: status,
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

// isAuditablePath excludes the auth endpoints and the WebSocket upgrade.
func isAuditablePath(path string) bool {
	if !strings.HasPrefix(path, "/api/v1/") {
		return false
	}
	rest := strings.TrimPrefix(path, "/api/v1/")
	return rest != "" && rest != "ws" && !strings.HasPrefix(rest, "auth/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource names the data touched by a request:
//
//   - /api/v1/patients/123            -> patients
//   - /api/v1/docs/users/u1/reports/9 -> reports
//   - /api/v1/docs/users/u1           -> users
func extractResource(path string) string {
	segs := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return "unknown"
	}
	if segs[0] != "docs" || len(segs) < 2 {
		return segs[0]
	}
	doc := segs[1:]
	// Collections sit at even offsets of a document path.
	last := (len(doc) - 1) &^ 1
	return doc[last]
}

// extractPatientID finds the patient of /api/v1/patients/<uuid> paths or of
// a patientId query parameter.
func extractPatientID(c echo.Context) string {
	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api/v1/patients/") {
		segs := strings.Split(strings.TrimPrefix(path, "/api/v1/patients/"), "/")
		if _, err := uuid.Parse(segs[0]); err == nil {
			return segs[0]
		}
	}
	return c.QueryParam("patientId")
}
