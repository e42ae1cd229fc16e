package dbapi

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentdesk/dentdesk/internal/platform/db"
)

// Store runs proxy statements.
type Store interface {
	Rows(ctx context.Context, sql string, args ...interface{}) ([]Record, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (int64, error)
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

func (s *storePG) Rows(ctx context.Context, sql string, args ...interface{}) ([]Record, error) {
	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(maps))
	for i, m := range maps {
		out[i] = normalize(m)
	}
	return out, nil
}

func (s *storePG) Exec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// normalize renders uuid columns, which pgx decodes to byte arrays, as
// strings.
func normalize(m map[string]interface{}) Record {
	for k, v := range m {
		if b, ok := v.([16]byte); ok {
			m[k] = uuid.UUID(b).String()
		}
	}
	return Record(m)
}
