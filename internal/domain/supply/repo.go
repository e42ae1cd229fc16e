package supply

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrInsufficientStock is returned by ApplyChange when the guarded update
// would take quantity below zero.
var ErrInsufficientStock = errors.New("supply: insufficient stock")

type InventoryRepository interface {
	Create(ctx context.Context, item *InventoryItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*InventoryItem, error)
	Update(ctx context.Context, item *InventoryItem) error
	List(ctx context.Context, search string, limit, offset int) ([]*InventoryItem, int, error)
	ListAll(ctx context.Context) ([]*InventoryItem, error)
	ListLow(ctx context.Context, fallbackThreshold int) ([]*InventoryItem, error)
	// ApplyChange adds change to quantity in one statement. Unless
	// allowNegative is set the update only matches while the result stays
	// at or above zero.
	ApplyChange(ctx context.Context, id uuid.UUID, change int, allowNegative bool) (*InventoryItem, error)
	RecordAdjustment(ctx context.Context, adj *Adjustment) error
	ListAdjustments(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Adjustment, int, error)
}
