package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentdesk/dentdesk/internal/platform/db"
)

// ErrAtomicUnavailable reports that complete_visit_atomic is not installed
// in the tenant schema.
var ErrAtomicUnavailable = errors.New("billing: atomic visit function unavailable")

const (
	sqlstateUndefinedFunction = "42883"
	// Raised by complete_visit_atomic when a deduction would go below zero.
	sqlstateStockShortfall = "DD409"
)

// StockShortfallError reports the first item complete_visit_atomic could
// not deduct. The whole call is rolled back.
type StockShortfallError struct {
	ItemID uuid.UUID `json:"item_id"`
	Need   int       `json:"need"`
	Have   int       `json:"have"`
}

func (e *StockShortfallError) Error() string {
	return fmt.Sprintf("billing: insufficient stock for item %s (need %d, have %d)", e.ItemID, e.Need, e.Have)
}

// stockShortfall decodes the DD409 error raised by complete_visit_atomic.
func stockShortfall(err error) (*StockShortfallError, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != sqlstateStockShortfall {
		return nil, false
	}
	short := &StockShortfallError{}
	// A detail that does not decode still classifies as a shortfall.
	_ = json.Unmarshal([]byte(pgErr.Detail), short)
	return short, true
}

// notFoundStatus matches a bare 404 status, not digits inside an id.
var notFoundStatus = regexp.MustCompile(`\b404\b`)

// IsAtomicUnavailable classifies an RPC failure as a missing function.
// Besides the Postgres SQLSTATE it recognises the markers a REST proxy in
// front of the database reports for an unknown function.
func IsAtomicUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAtomicUnavailable) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlstateUndefinedFunction {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "PGRST202") ||
		notFoundStatus.MatchString(msg) ||
		strings.Contains(msg, "schema cache")
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository {
	return &invoiceRepoPG{pool: pool}
}

func (r *invoiceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const invoiceCols = `id, appointment_id, patient_id, dentist_id, subtotal_cents, total_amount_cents,
	adjustment_type, adjustment_value, status, payment_request_id, created_by, created_at, updated_at`

const itemCols = `id, invoice_id, procedure_key, description, tooth, quantity, unit_price_cents, total_cents`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.AppointmentID, &inv.PatientID, &inv.DentistID, &inv.SubtotalCents,
		&inv.TotalAmountCents, &inv.AdjustmentType, &inv.AdjustmentValue, &inv.Status,
		&inv.PaymentRequestID, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanItem(row pgx.Row) (*InvoiceItem, error) {
	var it InvoiceItem
	err := row.Scan(&it.ID, &it.InvoiceID, &it.ProcedureKey, &it.Description, &it.Tooth,
		&it.Quantity, &it.UnitPriceCents, &it.TotalCents)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO invoices (id, appointment_id, patient_id, dentist_id, subtotal_cents,
			total_amount_cents, adjustment_type, adjustment_value, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		inv.ID, inv.AppointmentID, inv.PatientID, inv.DentistID, inv.SubtotalCents,
		inv.TotalAmountCents, inv.AdjustmentType, inv.AdjustmentValue, inv.Status, inv.CreatedBy,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	for _, it := range inv.Items {
		it.ID = uuid.New()
		it.InvoiceID = inv.ID
		_, err := q.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, procedure_key, description, tooth,
				quantity, unit_price_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.InvoiceID, it.ProcedureKey, it.Description, it.Tooth,
			it.Quantity, it.UnitPriceCents, it.TotalCents)
		if err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	q := r.conn(ctx)
	inv, err := scanInvoice(q.QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+itemCols+` FROM invoice_items WHERE invoice_id = $1 ORDER BY description`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, rows.Err()
}

func (r *invoiceRepoPG) List(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	q := db.NewQuery("invoices", invoiceCols)
	if f.PatientID != nil {
		q.Eq("patient_id", *f.PatientID)
	}
	if f.AppointmentID != nil {
		q.Eq("appointment_id", *f.AppointmentID)
	}
	if f.Status != "" {
		q.Eq("status", f.Status)
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
	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *invoiceRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *invoiceRepoPG) SetPaymentRequest(ctx context.Context, id uuid.UUID, paymentRequestID string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE invoices SET payment_request_id = $2, updated_at = NOW() WHERE id = $1`, id, paymentRequestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *invoiceRepoPG) CompleteVisitAtomic(ctx context.Context, v AtomicVisit) (uuid.UUID, error) {
	items := v.Items
	if items == nil {
		items = []*InvoiceItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal items: %w", err)
	}
	deductions := v.Deductions
	if deductions == nil {
		deductions = []Deduction{}
	}
	deductionsJSON, err := json.Marshal(deductions)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal deductions: %w", err)
	}

	var invoiceID uuid.UUID
	err = r.conn(ctx).QueryRow(ctx,
		`SELECT complete_visit_atomic($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10)`,
		v.AppointmentID, v.DentistID, v.PatientID, v.TotalCents,
		v.AdjustmentType, v.AdjustmentValue, string(itemsJSON), string(deductionsJSON), v.CreatedBy,
		v.AllowNegative,
	).Scan(&invoiceID)
	if err != nil {
		if short, ok := stockShortfall(err); ok {
			return uuid.Nil, short
		}
		if IsAtomicUnavailable(err) {
			return uuid.Nil, fmt.Errorf("%w: %v", ErrAtomicUnavailable, err)
		}
		return uuid.Nil, fmt.Errorf("complete_visit_atomic: %w", err)
	}
	return invoiceID, nil
}
