package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withAuth(userID string, roles []string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := req.Context()
		ctx = context.WithValue(ctx, auth.UserIDKey, userID)
		ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
		*req = *req.WithContext(ctx)
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_PatientRead(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}
	patientID := uuid.New().String()

	c, _ := newTestContext(http.MethodGet,
		fmt.Sprintf("/api/v1/patients/%s", patientID),
		withAuth("user-1", []string{"dentist"}),
	)
	c.Set("request_id", "req-abc")
	c.Set("tenant_id", "smile_dental")

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.UserID != "user-1" {
		t.Errorf("expected user_id 'user-1', got %q", entry.UserID)
	}
	if entry.Resource != "patients" {
		t.Errorf("expected resource 'patients', got %q", entry.Resource)
	}
	if entry.PatientID != patientID {
		t.Errorf("expected patient_id %q, got %q", patientID, entry.PatientID)
	}
	if entry.Action != "read" {
		t.Errorf("expected action 'read', got %q", entry.Action)
	}
	if entry.RequestID != "req-abc" {
		t.Errorf("expected request_id 'req-abc', got %q", entry.RequestID)
	}
	if entry.TenantID != "smile_dental" {
		t.Errorf("expected tenant 'smile_dental', got %q", entry.TenantID)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.StatusCode)
	}
}

func TestAudit_CompletionCreate(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}
	apptID := uuid.New().String()

	c, _ := newTestContext(http.MethodPost,
		fmt.Sprintf("/api/v1/appointments/%s/completion", apptID),
		withAuth("user-2", []string{"dentist"}),
	)

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := rec.last()
	if entry.Action != "create" {
		t.Errorf("expected action 'create', got %q", entry.Action)
	}
	if entry.Resource != "appointments" {
		t.Errorf("expected resource 'appointments', got %q", entry.Resource)
	}
	if entry.ResourceID != apptID {
		t.Errorf("expected resource_id %q, got %q", apptID, entry.ResourceID)
	}
}

func TestAudit_NonPatientReadNotPersisted(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodGet, "/api/v1/catalog/procedures",
		withAuth("user-3", []string{"staff"}))

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected catalog read not to be persisted, got %d entries", rec.count())
	}
}

func TestAudit_FailedRequestNotPersisted(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodPost, "/api/v1/patients",
		withAuth("user-4", []string{"staff"}))

	h := Audit(logger, rec)(func(c echo.Context) error {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "first_name is required"})
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected rejected write not to be persisted, got %d entries", rec.count())
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	for _, path := range []string{"/health", "/health/db", "/", "/api/v1"} {
		c, _ := newTestContext(http.MethodPost, path)
		if err := Audit(logger, rec)(okHandler)(c); err != nil {
			t.Fatalf("unexpected error for path %s: %v", path, err)
		}
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 audit entries, got %d", rec.count())
	}
}

func TestAudit_RecorderError_DoesNotBreakRequest(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{err: errors.New("database connection failed")}

	c, _ := newTestContext(http.MethodDelete, "/api/v1/db",
		withAuth("user-6", []string{"admin"}))

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("expected no error even when recorder fails, got: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected recorder to be called once, got %d", rec.count())
	}
}

func TestAudit_NoRecorder_LogOnly(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	c, _ := newTestContext(http.MethodGet, "/api/v1/patients",
		withAuth("user-7", []string{"staff"}))

	if err := Audit(logger)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_PatientIDFromQuery(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}
	patientID := uuid.New().String()

	c, _ := newTestContext(http.MethodGet, "/api/v1/invoices?patient_id="+patientID,
		withAuth("user-8", []string{"staff"}))

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected patient-scoped read to be persisted, got %d", rec.count())
	}
	if got := rec.last().PatientID; got != patientID {
		t.Errorf("expected patient_id %q, got %q", patientID, got)
	}
}

func TestAudit_CapturesIPAndUserAgent(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodPost, "/api/v1/inventory",
		withAuth("user-9", []string{"staff"}),
		func(req *http.Request) { req.Header.Set("User-Agent", "FrontDesk/2.3") },
	)

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := rec.last()
	if entry.UserAgent != "FrontDesk/2.3" {
		t.Errorf("expected user agent 'FrontDesk/2.3', got %q", entry.UserAgent)
	}
	if entry.IPAddress == "" {
		t.Error("expected non-empty IP address")
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{http.MethodGet, "read"},
		{http.MethodHead, "read"},
		{http.MethodPost, "create"},
		{http.MethodPut, "update"},
		{http.MethodPatch, "update"},
		{http.MethodDelete, "delete"},
		{http.MethodOptions, "read"},
	}
	for _, tt := range tests {
		if got := httpMethodToAction(tt.method); got != tt.want {
			t.Errorf("httpMethodToAction(%q) = %q, want %q", tt.method, got, tt.want)
		}
	}
}

func TestSplitResource(t *testing.T) {
	id := uuid.New().String()
	tests := []struct {
		path         string
		wantResource string
		wantID       string
	}{
		{"/api/v1/patients", "patients", ""},
		{"/api/v1/patients/" + id, "patients", id},
		{"/api/v1/appointments/" + id + "/completion", "appointments", id},
		{"/api/v1/catalog/procedures", "catalog", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		res, rid := splitResource(tt.path)
		if res != tt.wantResource || rid != tt.wantID {
			t.Errorf("splitResource(%q) = (%q, %q), want (%q, %q)", tt.path, res, rid, tt.wantResource, tt.wantID)
		}
	}
}

func TestIsUUIDLike(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{uuid.New().String(), true},
		{"not-a-uuid", false},
		{"", false},
		{"12345678-1234-1234-1234-123456789012", true},
	}
	for _, tt := range tests {
		if got := isUUIDLike(tt.input); got != tt.want {
			t.Errorf("isUUIDLike(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var called bool
	fn := AuditRecorderFunc(func(entry AuditEntry) error {
		called = true
		return nil
	})
	if err := fn.RecordAccess(AuditEntry{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected function to be called")
	}
}
