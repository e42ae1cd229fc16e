package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusDraft   = "draft"
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusVoid    = "void"
)

// Adjustment types applied to an invoice subtotal. Only one applies.
const (
	AdjustmentNone            = "none"
	AdjustmentDiscountPercent = "discount_percent"
	AdjustmentDiscountAmount  = "discount_amount"
	AdjustmentSurchargeAmount = "surcharge_amount"
)

func ValidAdjustmentType(t string) bool {
	switch t {
	case AdjustmentNone, AdjustmentDiscountPercent, AdjustmentDiscountAmount, AdjustmentSurchargeAmount:
		return true
	}
	return false
}

// Invoice maps to the invoices table.
type Invoice struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	AppointmentID    *uuid.UUID      `db:"appointment_id" json:"appointment_id,omitempty"`
	PatientID        uuid.UUID       `db:"patient_id" json:"patient_id"`
	DentistID        *uuid.UUID      `db:"dentist_id" json:"dentist_id,omitempty"`
	SubtotalCents    int64           `db:"subtotal_cents" json:"subtotal_cents"`
	TotalAmountCents int64           `db:"total_amount_cents" json:"total_amount_cents"`
	AdjustmentType   string          `db:"adjustment_type" json:"adjustment_type"`
	AdjustmentValue  decimal.Decimal `db:"adjustment_value" json:"adjustment_value"`
	Status           string          `db:"status" json:"status"`
	PaymentRequestID *string         `db:"payment_request_id" json:"payment_request_id,omitempty"`
	CreatedBy        *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	Items            []*InvoiceItem  `json:"items,omitempty"`
}

// InvoiceItem maps to the invoice_items table. The json keys double as the
// item shape complete_visit_atomic expects.
type InvoiceItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	InvoiceID      uuid.UUID `db:"invoice_id" json:"invoice_id"`
	ProcedureKey   *string   `db:"procedure_key" json:"procedure_key,omitempty"`
	Description    string    `db:"description" json:"description"`
	Tooth          *string   `db:"tooth" json:"tooth,omitempty"`
	Quantity       int       `db:"quantity" json:"quantity"`
	UnitPriceCents int64     `db:"unit_price_cents" json:"unit_price_cents"`
	TotalCents     int64     `db:"total_cents" json:"total_cents"`
}

// Deduction is one inventory decrement performed by the atomic visit call.
type Deduction struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// AtomicVisit is the argument set of complete_visit_atomic.
type AtomicVisit struct {
	AppointmentID   uuid.UUID
	DentistID       uuid.UUID
	PatientID       uuid.UUID
	TotalCents      int64
	AdjustmentType  string
	AdjustmentValue decimal.Decimal
	Items           []*InvoiceItem
	Deductions      []Deduction
	CreatedBy       string
	// AllowNegative lets deductions take an item below zero.
	AllowNegative bool
}
