package completion

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentdesk/dentdesk/internal/domain/catalog"
	"github.com/dentdesk/dentdesk/internal/domain/supply"
)

// ProcedureLine is one performed procedure on the completion sheet. Lines
// without a catalog key are custom and contribute no supplies.
type ProcedureLine struct {
	ID              string          `json:"id"`
	Key             string          `json:"key,omitempty"`
	Name            string          `json:"name"`
	Qty             int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Tooth           string          `json:"tooth,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
}

// LineTotal is Qty * UnitPrice.
func (l *ProcedureLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

func (l *ProcedureLine) procedure() (catalog.Procedure, bool) {
	if l.Key == "" {
		return catalog.Procedure{}, false
	}
	return catalog.Lookup(l.Key)
}

type overrideKey struct {
	LineID string
	SKU    string
}

// OverrideSet records per-line supply inclusion toggles. A missing entry
// means the default supply is included.
type OverrideSet struct {
	m map[overrideKey]bool
}

func (o OverrideSet) Included(lineID, sku string) bool {
	included, ok := o.m[overrideKey{lineID, sku}]
	return !ok || included
}

func (o *OverrideSet) set(lineID, sku string, included bool) {
	if o.m == nil {
		o.m = make(map[overrideKey]bool)
	}
	o.m[overrideKey{lineID, sku}] = included
}

func (o *OverrideSet) dropLine(lineID string) {
	for k := range o.m {
		if k.LineID == lineID {
			delete(o.m, k)
		}
	}
}

func (o OverrideSet) Len() int { return len(o.m) }

// Change kinds.
const (
	ChangePriceEdit      = "price_edit"
	ChangeSupplyOverride = "supply_override"
)

// ChangeRecord is one user edit worth auditing after a save.
type ChangeRecord struct {
	Kind   string    `json:"kind"`
	LineID string    `json:"line_id"`
	Key    string    `json:"key,omitempty"`
	SKU    string    `json:"sku,omitempty"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	At     time.Time `json:"at"`
}

// SupplyRow is one inventory deduction candidate. Auto rows come from the
// catalog; manual rows were added by hand. Rows for the same item are not
// merged.
type SupplyRow struct {
	ItemID uuid.UUID `json:"item_id"`
	Name   string    `json:"name"`
	SKU    string    `json:"sku,omitempty"`
	Qty    int       `json:"quantity"`
	Manual bool      `json:"manual"`
}

// Sheet is the completion sheet aggregate. Every mutation recomputes the
// supply list.
type Sheet struct {
	lines      []*ProcedureLine
	overrides  OverrideSet
	manual     []SupplyRow
	inventory  []*supply.InventoryItem
	supplies   []SupplyRow
	unresolved []UnresolvedSupply
	changes    []ChangeRecord
	now        func() time.Time
}

func NewSheet(inventory []*supply.InventoryItem) *Sheet {
	return &Sheet{inventory: inventory, now: time.Now}
}

func (s *Sheet) line(id string) (*ProcedureLine, error) {
	for _, l := range s.lines {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("unknown procedure %q", id)
}

func (s *Sheet) addLine(l *ProcedureLine) (*ProcedureLine, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if _, err := s.line(l.ID); err == nil {
		return nil, fmt.Errorf("duplicate procedure id %q", l.ID)
	}
	s.lines = append(s.lines, l)
	s.recomputeSupplies()
	return l, nil
}

// AddCatalogProcedure adds a line with the catalog defaults for key.
func (s *Sheet) AddCatalogProcedure(lineID, key string) (*ProcedureLine, error) {
	p, ok := catalog.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("unknown procedure key %q", key)
	}
	return s.addLine(&ProcedureLine{
		ID:              lineID,
		Key:             p.Key,
		Name:            p.Name,
		Qty:             1,
		UnitPrice:       p.Price,
		DurationMinutes: p.DurationMinutes,
	})
}

// AddCustomProcedure adds a free-text line.
func (s *Sheet) AddCustomProcedure(lineID, name string, price decimal.Decimal) (*ProcedureLine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("custom procedure name is required")
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("unit price must not be negative")
	}
	return s.addLine(&ProcedureLine{ID: lineID, Name: name, Qty: 1, UnitPrice: price.Round(2)})
}

func (s *Sheet) SetQuantity(lineID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	l, err := s.line(lineID)
	if err != nil {
		return err
	}
	l.Qty = qty
	s.recomputeSupplies()
	return nil
}

// SetUnitPrice changes a line's price, rounded to cents. A change is
// recorded when the price actually differs.
func (s *Sheet) SetUnitPrice(lineID string, price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("unit price must not be negative")
	}
	l, err := s.line(lineID)
	if err != nil {
		return err
	}
	price = price.Round(2)
	if !price.Equal(l.UnitPrice) {
		s.changes = append(s.changes, ChangeRecord{
			Kind:   ChangePriceEdit,
			LineID: l.ID,
			Key:    l.Key,
			From:   l.UnitPrice.StringFixed(2),
			To:     price.StringFixed(2),
			At:     s.now().UTC(),
		})
		l.UnitPrice = price
	}
	s.recomputeSupplies()
	return nil
}

func (s *Sheet) SetTooth(lineID, tooth string) error {
	l, err := s.line(lineID)
	if err != nil {
		return err
	}
	l.Tooth = strings.TrimSpace(tooth)
	return nil
}

func (s *Sheet) SetDuration(lineID string, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	l, err := s.line(lineID)
	if err != nil {
		return err
	}
	l.DurationMinutes = minutes
	return nil
}

// RemoveProcedure drops the line and its overrides.
func (s *Sheet) RemoveProcedure(lineID string) error {
	for i, l := range s.lines {
		if l.ID == lineID {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			s.overrides.dropLine(lineID)
			s.recomputeSupplies()
			return nil
		}
	}
	return fmt.Errorf("unknown procedure %q", lineID)
}

// SetSupplyOverride includes or excludes one default supply of one line.
// The SKU must be listed by the line's catalog procedure.
func (s *Sheet) SetSupplyOverride(lineID, sku string, included bool) error {
	l, err := s.line(lineID)
	if err != nil {
		return err
	}
	p, ok := l.procedure()
	if !ok || !p.Uses(sku) {
		return fmt.Errorf("procedure %q does not use supply %q", lineID, sku)
	}
	if prev := s.overrides.Included(lineID, sku); prev != included {
		s.changes = append(s.changes, ChangeRecord{
			Kind:   ChangeSupplyOverride,
			LineID: lineID,
			Key:    l.Key,
			SKU:    sku,
			From:   includedLabel(prev),
			To:     includedLabel(included),
			At:     s.now().UTC(),
		})
	}
	s.overrides.set(lineID, sku, included)
	s.recomputeSupplies()
	return nil
}

func includedLabel(b bool) string {
	if b {
		return "included"
	}
	return "excluded"
}

// AddManualSupply adds a hand-picked inventory deduction.
func (s *Sheet) AddManualSupply(itemID uuid.UUID, qty int) error {
	if qty < 1 {
		return fmt.Errorf("supply quantity must be at least 1")
	}
	var item *supply.InventoryItem
	for _, it := range s.inventory {
		if it.ID == itemID {
			item = it
			break
		}
	}
	if item == nil {
		return fmt.Errorf("unknown inventory item %s", itemID)
	}
	s.manual = append(s.manual, SupplyRow{ItemID: item.ID, Name: item.Name, SKU: derefSKU(item.SKU), Qty: qty, Manual: true})
	s.recomputeSupplies()
	return nil
}

func derefSKU(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// recomputeSupplies rebuilds the auto rows and keeps manual rows first, in
// the order they were added.
func (s *Sheet) recomputeSupplies() {
	auto, unresolved := AggregateSupplies(s.lines, s.overrides, s.inventory)
	rows := make([]SupplyRow, 0, len(s.manual)+len(auto))
	rows = append(rows, s.manual...)
	rows = append(rows, auto...)
	s.supplies = rows
	s.unresolved = unresolved
}

func (s *Sheet) Lines() []*ProcedureLine {
	return append([]*ProcedureLine(nil), s.lines...)
}

func (s *Sheet) Supplies() []SupplyRow {
	return append([]SupplyRow(nil), s.supplies...)
}

func (s *Sheet) Unresolved() []UnresolvedSupply {
	return append([]UnresolvedSupply(nil), s.unresolved...)
}

func (s *Sheet) Changes() []ChangeRecord {
	return append([]ChangeRecord(nil), s.changes...)
}

func (s *Sheet) Overrides() OverrideSet { return s.overrides }

func (s *Sheet) Inventory() []*supply.InventoryItem { return s.inventory }
