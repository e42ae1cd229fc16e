package auditevent

import (
	"context"

	"github.com/google/uuid"
)

type AuditLogRepository interface {
	Create(ctx context.Context, l *AuditLog) error
	// CreateInSchema writes to the audit_logs table of an explicit tenant
	// schema, for callers that run outside a tenant request.
	CreateInSchema(ctx context.Context, schema string, l *AuditLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*AuditLog, error)
	Search(ctx context.Context, f Filter, limit, offset int) ([]*AuditLog, int, error)
}
