package billing

import (
	"context"

	"github.com/google/uuid"
)

type InvoiceFilter struct {
	PatientID     *uuid.UUID
	AppointmentID *uuid.UUID
	Status        string
}

type InvoiceRepository interface {
	// Create inserts the invoice and then its items.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SetPaymentRequest(ctx context.Context, id uuid.UUID, paymentRequestID string) error
	// CompleteVisitAtomic calls the complete_visit_atomic function. It
	// returns an error wrapping ErrAtomicUnavailable when the function is
	// not installed and a *StockShortfallError when a deduction would take
	// an item below zero without AllowNegative.
	CompleteVisitAtomic(ctx context.Context, v AtomicVisit) (uuid.UUID, error)
}
