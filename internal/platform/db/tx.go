package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DBTxKey contextKey = "db_tx"

// TxFromContext returns the transaction stored by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the tenant connection carried by ctx and
// returns a derived context holding it. When ctx already holds a transaction
// the new one is a savepoint inside it.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	if outer := TxFromContext(ctx); outer != nil {
		tx, err := outer.Begin(ctx)
		if err != nil {
			return ctx, nil, fmt.Errorf("begin savepoint: %w", err)
		}
		return context.WithValue(ctx, DBTxKey, tx), tx, nil
	}

	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, errors.New("no database connection in context")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// RunInTx runs fn inside a transaction. Repositories called with the context
// passed to fn pick the transaction up through TxFromContext. fn's error, or
// a panic, rolls the transaction back; otherwise it is committed.
//
// When ctx carries neither a transaction nor a tenant connection, a pool
// connection is acquired for the duration of the call.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) (err error) {
	if TxFromContext(ctx) == nil && ConnFromContext(ctx) == nil {
		if pool == nil {
			return errors.New("no database connection in context")
		}
		conn, acqErr := pool.Acquire(ctx)
		if acqErr != nil {
			return fmt.Errorf("acquire connection: %w", acqErr)
		}
		defer conn.Release()
		ctx = context.WithValue(ctx, DBConnKey, conn)
	}

	txCtx, tx, err := WithTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err = fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Savepoint runs fn inside a savepoint of the transaction carried by ctx.
// A failing fn rolls back only its own work, leaving the outer transaction
// usable.
func Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) == nil {
		return errors.New("savepoint requires a transaction in context")
	}
	return RunInTx(ctx, nil, fn)
}
