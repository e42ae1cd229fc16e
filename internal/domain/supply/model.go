package supply

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Adjustment reasons recorded in inventory_adjustments.
const (
	ReasonVisitCompletion = "visit_completion"
	ReasonManual          = "manual"
	ReasonRestock         = "restock"
	ReasonCorrection      = "correction"
)

// InventoryItem maps to the inventory_items table.
type InventoryItem struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	SKU               *string   `db:"sku" json:"sku,omitempty"`
	Unit              string    `db:"unit" json:"unit"`
	Quantity          int       `db:"quantity" json:"quantity"`
	LowStockThreshold int       `db:"low_stock_threshold" json:"low_stock_threshold"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Threshold returns the item's low-stock threshold, or fallback when the
// item has none.
func (i *InventoryItem) Threshold(fallback int) int {
	if i.LowStockThreshold > 0 {
		return i.LowStockThreshold
	}
	return fallback
}

// IsLow reports whether quantity has fallen below the threshold.
func (i *InventoryItem) IsLow(fallback int) bool {
	return i.Quantity < i.Threshold(fallback)
}

// NameMatches is the case-insensitive exact match used to resolve catalog
// supply names to inventory rows.
func (i *InventoryItem) NameMatches(name string) bool {
	return strings.EqualFold(strings.TrimSpace(i.Name), strings.TrimSpace(name))
}

// Adjustment maps to the inventory_adjustments table. Change is signed.
type Adjustment struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ItemID        uuid.UUID  `db:"item_id" json:"item_id"`
	Change        int        `db:"change" json:"change"`
	Reason        string     `db:"reason" json:"reason"`
	ReferenceType *string    `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID `db:"reference_id" json:"reference_id,omitempty"`
	CreatedBy     *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
