package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one numbered SQL file.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies numbered SQL files to a practice schema. The files come
// from an fs.FS so the binary can ship them embedded.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

func NewMigrator(pool *pgxpool.Pool, fsys fs.FS) *Migrator {
	return &Migrator{pool: pool, fsys: fsys}
}

// parseVersion reads the numeric prefix of "001_core.sql".
func parseVersion(name string) (int, bool) {
	if path.Ext(name) != ".sql" {
		return 0, false
	}
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// LoadMigrations returns the versioned .sql files at the root of the
// migration FS in version order. Nested directories and unversioned files
// are ignored.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	if m.fsys == nil {
		return nil, fmt.Errorf("no migration source configured")
	}
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, ok := parseVersion(e.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(m.fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: v, Name: e.Name(), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// withSchema runs fn on a dedicated connection whose search_path is the
// practice schema. The tracking table is created first.
func (m *Migrator) withSchema(ctx context.Context, schema string, fn func(conn *pgxpool.Conn) error) error {
	if !ValidTenantID(strings.TrimPrefix(schema, "tenant_")) {
		return fmt.Errorf("invalid schema name: %s", schema)
	}
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// Unquoted, matching TenantMiddleware's search_path.
	if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	if _, err := conn.Exec(ctx, "SET search_path TO "+schema+", public"); err != nil {
		return fmt.Errorf("set search_path to %s: %w", schema, err)
	}
	// Pooled connections are reused; leave them on the default path.
	defer conn.Exec(context.WithoutCancel(ctx), "RESET search_path")

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
    version    INTEGER PRIMARY KEY,
    name       VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("create _migrations in %s: %w", schema, err)
	}
	return fn(conn)
}

func applied(ctx context.Context, conn *pgxpool.Conn) (map[int]time.Time, error) {
	rows, err := conn.Query(ctx, `SELECT version, applied_at FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("query _migrations: %w", err)
	}
	done := make(map[int]time.Time)
	var v int
	var at time.Time
	if _, err := pgx.ForEachRow(rows, []any{&v, &at}, func() error {
		done[v] = at
		return nil
	}); err != nil {
		return nil, fmt.Errorf("scan _migrations: %w", err)
	}
	return done, nil
}

// Up applies every pending migration to schema and returns how many ran.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	count := 0
	err = m.withSchema(ctx, schema, func(conn *pgxpool.Conn) error {
		done, err := applied(ctx, conn)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			if _, ok := done[mig.Version]; ok {
				continue
			}
			err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
				if _, err := tx.Exec(ctx, mig.SQL); err != nil {
					return err
				}
				_, err := tx.Exec(ctx, `INSERT INTO _migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
				return err
			})
			if err != nil {
				return fmt.Errorf("apply %s: %w", mig.Name, err)
			}
			count++
		}
		return nil
	})
	return count, err
}

// Status lists every known migration for schema, applied or pending.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	var out []MigrationStatus
	err = m.withSchema(ctx, schema, func(conn *pgxpool.Conn) error {
		done, err := applied(ctx, conn)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			st := MigrationStatus{Version: mig.Version, Name: mig.Name}
			if at, ok := done[mig.Version]; ok {
				st.Applied = true
				st.AppliedAt = &at
			}
			out = append(out, st)
		}
		return nil
	})
	return out, err
}
