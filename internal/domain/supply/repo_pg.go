package supply

import (
	"context"
	"errors"

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

type inventoryRepoPG struct{ pool *pgxpool.Pool }

func NewInventoryRepoPG(pool *pgxpool.Pool) InventoryRepository {
	return &inventoryRepoPG{pool: pool}
}

func (r *inventoryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const itemCols = `id, name, sku, unit, quantity, low_stock_threshold, created_at, updated_at`

func scanItem(row pgx.Row) (*InventoryItem, error) {
	var i InventoryItem
	if err := row.Scan(&i.ID, &i.Name, &i.SKU, &i.Unit, &i.Quantity, &i.LowStockThreshold,
		&i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *inventoryRepoPG) Create(ctx context.Context, item *InventoryItem) error {
	item.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory_items (id, name, sku, unit, quantity, low_stock_threshold)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		item.ID, item.Name, item.SKU, item.Unit, item.Quantity, item.LowStockThreshold,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

func (r *inventoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*InventoryItem, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM inventory_items WHERE id = $1`, id))
}

func (r *inventoryRepoPG) Update(ctx context.Context, item *InventoryItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_items SET name=$2, sku=$3, unit=$4, low_stock_threshold=$5, updated_at=NOW()
		WHERE id = $1`,
		item.ID, item.Name, item.SKU, item.Unit, item.LowStockThreshold)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *inventoryRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*InventoryItem, int, error) {
	q := db.NewQuery("inventory_items", itemCols)
	if search != "" {
		q.Contains(search, "name", "sku")
	}
	q.OrderBy("name")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectItems(rows)
	return items, total, err
}

func (r *inventoryRepoPG) ListAll(ctx context.Context) ([]*InventoryItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+itemCols+` FROM inventory_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *inventoryRepoPG) ListLow(ctx context.Context, fallbackThreshold int) ([]*InventoryItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+itemCols+` FROM inventory_items
		WHERE quantity < CASE WHEN low_stock_threshold > 0 THEN low_stock_threshold ELSE $1 END
		ORDER BY quantity, name`, fallbackThreshold)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]*InventoryItem, error) {
	defer rows.Close()
	var items []*InventoryItem
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *inventoryRepoPG) ApplyChange(ctx context.Context, id uuid.UUID, change int, allowNegative bool) (*InventoryItem, error) {
	item, err := scanItem(r.conn(ctx).QueryRow(ctx, `
		UPDATE inventory_items SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND (quantity + $2 >= 0 OR $3)
		RETURNING `+itemCols, id, change, allowNegative))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Tell a missing row apart from a refused decrement.
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM inventory_items WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, pgx.ErrNoRows
	}
	return nil, ErrInsufficientStock
}

func (r *inventoryRepoPG) RecordAdjustment(ctx context.Context, adj *Adjustment) error {
	adj.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory_adjustments (id, item_id, change, reason, reference_type, reference_id, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		adj.ID, adj.ItemID, adj.Change, adj.Reason, adj.ReferenceType, adj.ReferenceID, adj.CreatedBy,
	).Scan(&adj.CreatedAt)
}

func (r *inventoryRepoPG) ListAdjustments(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Adjustment, int, error) {
	q := db.NewQuery("inventory_adjustments",
		`id, item_id, change, reason, reference_type, reference_id, created_by, created_at`)
	q.Eq("item_id", itemID)
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
	var out []*Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.ItemID, &a.Change, &a.Reason, &a.ReferenceType,
			&a.ReferenceID, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &a)
	}
	return out, total, rows.Err()
}
