package auditevent

import (
	"context"
	"fmt"
	"time"

	"github.com/dentdesk/dentdesk/internal/platform/db"
	"github.com/dentdesk/dentdesk/internal/platform/middleware"
)

const recordTimeout = 5 * time.Second

// AccessRecorder persists request audit entries into the tenant's
// audit_logs table. It satisfies middleware.AuditRecorder.
type AccessRecorder struct {
	repo          AuditLogRepository
	defaultTenant string
}

var _ middleware.AuditRecorder = (*AccessRecorder)(nil)

func NewAccessRecorder(repo AuditLogRepository, defaultTenant string) *AccessRecorder {
	return &AccessRecorder{repo: repo, defaultTenant: defaultTenant}
}

func (r *AccessRecorder) RecordAccess(entry middleware.AuditEntry) error {
	tenant := entry.TenantID
	if tenant == "" {
		tenant = r.defaultTenant
	}
	if !db.ValidTenantID(tenant) {
		return fmt.Errorf("invalid tenant %q", tenant)
	}

	details := map[string]interface{}{
		"method":     entry.Method,
		"path":       entry.Path,
		"status":     entry.StatusCode,
		"ip_address": entry.IPAddress,
		"user_agent": entry.UserAgent,
		"request_id": entry.RequestID,
		"roles":      entry.UserRoles,
	}
	if entry.PatientID != "" {
		details["patient_id"] = entry.PatientID
	}
	l, err := newLog(entry.UserID, entry.Action, entry.Resource, entry.ResourceID, details)
	if err != nil {
		return err
	}
	if !entry.Timestamp.IsZero() {
		details["timestamp"] = entry.Timestamp.Format(time.RFC3339)
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	return r.repo.CreateInSchema(ctx, db.SchemaName(tenant), l)
}
