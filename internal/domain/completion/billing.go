package completion

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dentdesk/dentdesk/internal/domain/billing"
)

var hundred = decimal.NewFromInt(100)

// Adjustment is the single discount or surcharge applied to the subtotal.
type Adjustment struct {
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

func (a Adjustment) normalized() Adjustment {
	if a.Type == "" {
		a.Type = billing.AdjustmentNone
	}
	return a
}

func (a Adjustment) Validate() error {
	a = a.normalized()
	if !billing.ValidAdjustmentType(a.Type) {
		return fmt.Errorf("invalid adjustment type: %s", a.Type)
	}
	if a.Value.IsNegative() {
		return fmt.Errorf("adjustment value must not be negative")
	}
	return nil
}

// Subtotal is the sum of qty * unit price over all lines.
func Subtotal(lines []*ProcedureLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// ComputeTotal applies adj to subtotal, floors the result at zero and
// rounds to cents.
func ComputeTotal(subtotal decimal.Decimal, adj Adjustment) decimal.Decimal {
	adj = adj.normalized()
	total := subtotal
	switch adj.Type {
	case billing.AdjustmentDiscountPercent:
		total = subtotal.Sub(subtotal.Mul(adj.Value).Div(hundred))
	case billing.AdjustmentDiscountAmount:
		total = subtotal.Sub(adj.Value)
	case billing.AdjustmentSurchargeAmount:
		total = subtotal.Add(adj.Value)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}

// Totals is the billed amount of a sheet.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Computed   decimal.Decimal `json:"computed_total"`
	Final      decimal.Decimal `json:"final_total"`
	Overridden bool            `json:"overridden"`
}

// CalculateTotals computes the totals. A non-nil override replaces the
// computed total.
func CalculateTotals(lines []*ProcedureLine, adj Adjustment, override *decimal.Decimal) (Totals, error) {
	if err := adj.Validate(); err != nil {
		return Totals{}, err
	}
	sub := Subtotal(lines)
	t := Totals{Subtotal: sub.Round(2), Computed: ComputeTotal(sub, adj)}
	t.Final = t.Computed
	if override != nil {
		if override.IsNegative() {
			return Totals{}, fmt.Errorf("final total must not be negative")
		}
		t.Final = override.Round(2)
		t.Overridden = true
	}
	return t, nil
}

// ToCents converts a decimal amount to whole cents, rounding half away from
// zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func (t Totals) SubtotalCents() int64 { return ToCents(t.Subtotal) }

func (t Totals) TotalCents() int64 { return ToCents(t.Final) }
