package auditevent

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentdesk/dentdesk/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type AuditLogRepoPG struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepoPG(pool *pgxpool.Pool) *AuditLogRepoPG {
	return &AuditLogRepoPG{pool: pool}
}

func (r *AuditLogRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const auditCols = `id, user_id, action, entity_type, entity_id, details, created_at`

func scanAudit(row pgx.Row) (*AuditLog, error) {
	var a AuditLog
	if err := row.Scan(&a.ID, &a.UserID, &a.Action, &a.EntityType, &a.EntityID, &a.Details, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuditLogRepoPG) insert(ctx context.Context, q queryable, table string, l *AuditLog) error {
	l.ID = uuid.New()
	if l.Details == nil {
		l.Details = map[string]interface{}{}
	}
	return q.QueryRow(ctx, `
		INSERT INTO `+table+` (id, user_id, action, entity_type, entity_id, details)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		l.ID, l.UserID, l.Action, l.EntityType, l.EntityID, l.Details,
	).Scan(&l.CreatedAt)
}

func (r *AuditLogRepoPG) Create(ctx context.Context, l *AuditLog) error {
	return r.insert(ctx, r.conn(ctx), "audit_logs", l)
}

func (r *AuditLogRepoPG) CreateInSchema(ctx context.Context, schema string, l *AuditLog) error {
	table := pgx.Identifier{schema, "audit_logs"}.Sanitize()
	return r.insert(ctx, r.pool, table, l)
}

func (r *AuditLogRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AuditLog, error) {
	return scanAudit(r.conn(ctx).QueryRow(ctx, `SELECT `+auditCols+` FROM audit_logs WHERE id = $1`, id))
}

func (r *AuditLogRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*AuditLog, int, error) {
	q := db.NewQuery("audit_logs", auditCols)
	if f.UserID != "" {
		q.Eq("user_id", f.UserID)
	}
	if f.Action != "" {
		q.Eq("action", f.Action)
	}
	if f.EntityType != "" {
		q.Eq("entity_type", f.EntityType)
	}
	if f.EntityID != "" {
		q.Eq("entity_id", f.EntityID)
	}
	if f.Since != nil {
		q.Since("created_at", *f.Since)
	}
	q.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AuditLog
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
