package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	invoices InvoiceRepository
}

func NewService(invoices InvoiceRepository) *Service {
	return &Service{invoices: invoices}
}

var validStatuses = map[string]bool{
	StatusDraft: true, StatusPending: true, StatusPaid: true, StatusVoid: true,
}

// PrepareItems validates items and fills in each line total. It returns the
// subtotal in cents.
func PrepareItems(items []*InvoiceItem) (int64, error) {
	var subtotal int64
	for i, it := range items {
		if strings.TrimSpace(it.Description) == "" {
			return 0, fmt.Errorf("items[%d]: description is required", i)
		}
		if it.Quantity < 1 {
			return 0, fmt.Errorf("items[%d]: quantity must be at least 1", i)
		}
		if it.UnitPriceCents < 0 {
			return 0, fmt.Errorf("items[%d]: unit_price_cents must not be negative", i)
		}
		it.TotalCents = int64(it.Quantity) * it.UnitPriceCents
		subtotal += it.TotalCents
	}
	return subtotal, nil
}

// CreateInvoice stores an invoice with its items. TotalAmountCents is taken
// as given; it may differ from the subtotal after adjustments.
func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if len(inv.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	subtotal, err := PrepareItems(inv.Items)
	if err != nil {
		return err
	}
	inv.SubtotalCents = subtotal
	if inv.TotalAmountCents < 0 {
		return fmt.Errorf("total_amount_cents must not be negative")
	}
	if inv.AdjustmentType == "" {
		inv.AdjustmentType = AdjustmentNone
	}
	if !ValidAdjustmentType(inv.AdjustmentType) {
		return fmt.Errorf("invalid adjustment_type: %s", inv.AdjustmentType)
	}
	if inv.AdjustmentValue.IsNegative() {
		return fmt.Errorf("adjustment_value must not be negative")
	}
	if inv.AdjustmentType == AdjustmentNone {
		inv.AdjustmentValue = decimal.Zero
	}
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	if !validStatuses[inv.Status] {
		return fmt.Errorf("invalid status: %s", inv.Status)
	}
	return s.invoices.Create(ctx, inv)
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, fmt.Errorf("invalid status: %s", f.Status)
	}
	return s.invoices.List(ctx, f, limit, offset)
}

// UpdateStatus moves an invoice to paid or void. Paid and void invoices are
// final.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Invoice, error) {
	if status != StatusPaid && status != StatusVoid && status != StatusPending {
		return nil, fmt.Errorf("invalid status: %s", status)
	}
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == status {
		return inv, nil
	}
	if inv.Status == StatusPaid || inv.Status == StatusVoid {
		return nil, fmt.Errorf("invoice is %s and cannot change to %s", inv.Status, status)
	}
	if err := s.invoices.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	inv.Status = status
	return inv, nil
}

func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.UpdateStatus(ctx, id, StatusPaid)
}

func (s *Service) SetPaymentRequest(ctx context.Context, id uuid.UUID, paymentRequestID string) error {
	if strings.TrimSpace(paymentRequestID) == "" {
		return fmt.Errorf("payment_request_id is required")
	}
	return s.invoices.SetPaymentRequest(ctx, id, paymentRequestID)
}

// CompleteVisitAtomic validates items and forwards to the database function.
func (s *Service) CompleteVisitAtomic(ctx context.Context, v AtomicVisit) (uuid.UUID, error) {
	if _, err := PrepareItems(v.Items); err != nil {
		return uuid.Nil, err
	}
	if v.TotalCents < 0 {
		return uuid.Nil, fmt.Errorf("total must not be negative")
	}
	if v.AdjustmentType == "" {
		v.AdjustmentType = AdjustmentNone
	}
	for _, d := range v.Deductions {
		if d.Quantity < 1 {
			return uuid.Nil, fmt.Errorf("deduction quantity must be at least 1")
		}
	}
	return s.invoices.CompleteVisitAtomic(ctx, v)
}
