package auditevent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/dentdesk/dentdesk/internal/platform/middleware"
)

// -- Mock Repository --

type mockAuditRepo struct {
	logs    []*AuditLog
	schemas []string
	err     error
}

func (m *mockAuditRepo) Create(_ context.Context, l *AuditLog) error {
	if m.err != nil {
		return m.err
	}
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockAuditRepo) CreateInSchema(ctx context.Context, schema string, l *AuditLog) error {
	m.schemas = append(m.schemas, schema)
	return m.Create(ctx, l)
}

func (m *mockAuditRepo) GetByID(_ context.Context, id uuid.UUID) (*AuditLog, error) {
	for _, l := range m.logs {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockAuditRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*AuditLog, int, error) {
	var out []*AuditLog
	for _, l := range m.logs {
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		if f.EntityType != "" && l.EntityType != f.EntityType {
			continue
		}
		out = append(out, l)
	}
	return out, len(out), nil
}

func TestRecord(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo)
	apptID := uuid.New().String()

	l, err := svc.Record(context.Background(), "dr-1", ActionFinalTotalOverride, "appointment", apptID,
		map[string]interface{}{"computed": "120.00", "final": "100.00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *l.UserID != "dr-1" || *l.EntityID != apptID {
		t.Errorf("unexpected log: %+v", l)
	}
	if len(repo.logs) != 1 {
		t.Errorf("expected one stored log, got %d", len(repo.logs))
	}
}

func TestRecord_Validation(t *testing.T) {
	svc := NewService(&mockAuditRepo{})
	if _, err := svc.Record(context.Background(), "u", "", "appointment", "", nil); err == nil {
		t.Error("expected error for missing action")
	}
	if _, err := svc.Record(context.Background(), "u", ActionPriceEdit, " ", "", nil); err == nil {
		t.Error("expected error for missing entity type")
	}
}

func TestRecord_AnonymousHasNilUser(t *testing.T) {
	svc := NewService(&mockAuditRepo{})
	l, err := svc.Record(context.Background(), "", ActionStockOverride, "appointment", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.UserID != nil || l.EntityID != nil {
		t.Errorf("expected nil user and entity, got %+v", l)
	}
}

func TestAccessRecorder_WritesToTenantSchema(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := NewAccessRecorder(repo, "default")
	patientID := uuid.New().String()

	err := rec.RecordAccess(middleware.AuditEntry{
		UserID: "user-1", Resource: "patients", ResourceID: patientID, PatientID: patientID,
		Action: "read", Method: http.MethodGet, Path: "/api/v1/patients/" + patientID,
		StatusCode: 200, TenantID: "smile_dental", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.schemas) != 1 || repo.schemas[0] != "tenant_smile_dental" {
		t.Fatalf("expected write to tenant_smile_dental, got %v", repo.schemas)
	}
	l := repo.logs[0]
	if l.EntityType != "patients" || l.Details["patient_id"] != patientID {
		t.Errorf("unexpected log: %+v", l)
	}
}

func TestAccessRecorder_DefaultTenant(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := NewAccessRecorder(repo, "default")
	if err := rec.RecordAccess(middleware.AuditEntry{Action: "create", Resource: "invoices"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.schemas[0] != "tenant_default" {
		t.Errorf("expected default tenant schema, got %s", repo.schemas[0])
	}
}

func TestAccessRecorder_RejectsBadTenant(t *testing.T) {
	rec := NewAccessRecorder(&mockAuditRepo{}, "default")
	err := rec.RecordAccess(middleware.AuditEntry{Action: "read", Resource: "patients", TenantID: "x; DROP SCHEMA"})
	if err == nil {
		t.Error("expected error for invalid tenant")
	}
}

func TestAccessRecorder_PropagatesRepoError(t *testing.T) {
	rec := NewAccessRecorder(&mockAuditRepo{err: errors.New("down")}, "default")
	if err := rec.RecordAccess(middleware.AuditEntry{Action: "read", Resource: "patients"}); err == nil {
		t.Error("expected repo error")
	}
}

func TestHandler_ListAuditLogs(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewService(repo)
	svc.Record(context.Background(), "u", ActionPriceEdit, "appointment", "", nil)
	svc.Record(context.Background(), "u", ActionSupplyOverride, "appointment", "", nil)
	h := NewHandler(svc)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?action=price_edit", nil), rec)
	if err := h.ListAuditLogs(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one match, got %s", rec.Body.String())
	}
}

func TestHandler_ListAuditLogs_BadSince(t *testing.T) {
	h := NewHandler(NewService(&mockAuditRepo{}))
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?since=yesterday", nil), httptest.NewRecorder())
	err := h.ListAuditLogs(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
