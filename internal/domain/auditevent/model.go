package auditevent

import (
	"time"

	"github.com/google/uuid"
)

// Actions written by the visit completion flow. Request-level access uses
// read, create, update and delete.
const (
	ActionFinalTotalOverride = "final_total_override"
	ActionStockOverride      = "stock_override"
	ActionPriceEdit          = "price_edit"
	ActionSupplyOverride     = "supply_override"
)

// AuditLog maps to the audit_logs table.
type AuditLog struct {
	ID         uuid.UUID              `db:"id" json:"id"`
	UserID     *string                `db:"user_id" json:"user_id,omitempty"`
	Action     string                 `db:"action" json:"action"`
	EntityType string                 `db:"entity_type" json:"entity_type"`
	EntityID   *string                `db:"entity_id" json:"entity_id,omitempty"`
	Details    map[string]interface{} `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time              `db:"created_at" json:"created_at"`
}

type Filter struct {
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	Since      *time.Time
}
