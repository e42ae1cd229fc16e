package inbox

import (
	"time"

	"github.com/google/uuid"
)

// Notification types.
const (
	TypeLowStock = "low_stock"
	TypePayment  = "payment"
	TypeRecall   = "recall"
	TypeGeneral  = "general"
)

// Notification maps to the notifications table.
type Notification struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	UserID    string                 `db:"user_id" json:"user_id"`
	Type      string                 `db:"type" json:"type"`
	Title     string                 `db:"title" json:"title"`
	Message   string                 `db:"message" json:"message"`
	Data      map[string]interface{} `db:"data" json:"data,omitempty"`
	Read      bool                   `db:"read" json:"read"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}
