package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry describes one API access: who touched which record and how.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	ResourceID string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	TenantID   string
	StatusCode int
}

// AuditRecorder persists audit entries. auditevent.Writer implements it.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1 request after the handler has run. When a
// recorder is given, entries that touch patient data are also persisted.
// Reads of non-patient resources (catalog, inventory) are only logged.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	var recorder AuditRecorder
	if len(recorders) > 0 {
		recorder = recorders[0]
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !strings.HasPrefix(path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Action:     httpMethodToAction(req.Method),
			}

			ctx := req.Context()
			entry.UserID = auth.UserIDFromContext(ctx)
			entry.UserRoles = auth.RolesFromContext(ctx)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if tid, ok := c.Get("tenant_id").(string); ok {
				entry.TenantID = tid
			}
			entry.Resource, entry.ResourceID = splitResource(path)
			entry.PatientID = extractPatientID(c, entry.Resource, entry.ResourceID)

			if recorder != nil && shouldPersist(entry) {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "api_audit").
				Str("request_id", entry.RequestID).
				Str("tenant_id", entry.TenantID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("api_access")

			return err
		}
	}
}

// shouldPersist keeps audit_logs focused: every successful write, plus any
// access that resolved to a patient.
func shouldPersist(entry AuditEntry) bool {
	if entry.StatusCode >= 400 {
		return false
	}
	return entry.Action != "read" || entry.PatientID != ""
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

// splitResource returns the first path segment after /api/v1/ and, when the
// second segment is a uuid, that id.
//
//	/api/v1/patients          -> patients, ""
//	/api/v1/patients/<id>     -> patients, <id>
//	/api/v1/appointments/<id>/completion -> appointments, <id>
func splitResource(path string) (string, string) {
	segments := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	resource := "unknown"
	if len(segments) > 0 && segments[0] != "" {
		resource = segments[0]
	}
	if len(segments) > 1 && isUUIDLike(segments[1]) {
		return resource, segments[1]
	}
	return resource, ""
}

func extractPatientID(c echo.Context, resource, resourceID string) string {
	if resource == "patients" && resourceID != "" {
		return resourceID
	}
	if patient := c.QueryParam("patient_id"); isUUIDLike(patient) {
		return patient
	}
	return ""
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
