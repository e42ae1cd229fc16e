package supply

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/platform/db"
	"github.com/dentdesk/dentdesk/internal/platform/events"
)

// TxFunc runs fn in a transaction, or a savepoint when ctx already holds one.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

type Option func(*Service)

// WithTx sets the transaction runner used by stock adjustments.
func WithTx(fn TxFunc) Option {
	return func(s *Service) { s.inTx = fn }
}

// WithEvents publishes a low-stock event when a manual adjustment leaves an
// item below its threshold.
func WithEvents(p events.Publisher, logger zerolog.Logger) Option {
	return func(s *Service) {
		s.publisher = p
		s.logger = logger
	}
}

type Service struct {
	items           InventoryRepository
	lowStockDefault int
	inTx            TxFunc
	publisher       events.Publisher
	logger          zerolog.Logger
}

func NewService(items InventoryRepository, lowStockDefault int, opts ...Option) *Service {
	s := &Service{
		items:           items,
		lowStockDefault: lowStockDefault,
		inTx:            func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) },
		logger:          zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LowStockDefault is the threshold applied to items without their own.
func (s *Service) LowStockDefault() int { return s.lowStockDefault }

func (s *Service) CreateItem(ctx context.Context, item *InventoryItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return fmt.Errorf("name is required")
	}
	if item.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if item.LowStockThreshold < 0 {
		return fmt.Errorf("low_stock_threshold must not be negative")
	}
	if item.LowStockThreshold == 0 {
		item.LowStockThreshold = s.lowStockDefault
	}
	if item.Unit == "" {
		item.Unit = "unit"
	}
	return s.items.Create(ctx, item)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*InventoryItem, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) UpdateItem(ctx context.Context, item *InventoryItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return fmt.Errorf("name is required")
	}
	if item.LowStockThreshold < 0 {
		return fmt.Errorf("low_stock_threshold must not be negative")
	}
	return s.items.Update(ctx, item)
}

func (s *Service) ListItems(ctx context.Context, search string, limit, offset int) ([]*InventoryItem, int, error) {
	return s.items.List(ctx, strings.TrimSpace(search), limit, offset)
}

// Snapshot reads the full inventory, fresh.
func (s *Service) Snapshot(ctx context.Context) ([]*InventoryItem, error) {
	return s.items.ListAll(ctx)
}

func (s *Service) LowStock(ctx context.Context) ([]*InventoryItem, error) {
	return s.items.ListLow(ctx, s.lowStockDefault)
}

func (s *Service) ListAdjustments(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]*Adjustment, int, error) {
	return s.items.ListAdjustments(ctx, itemID, limit, offset)
}

// AdjustRequest describes one signed stock change.
type AdjustRequest struct {
	ItemID        uuid.UUID
	Change        int
	Reason        string
	ReferenceType string
	ReferenceID   *uuid.UUID
	CreatedBy     string
	AllowNegative bool
}

// StockChange is the item state after an adjustment.
type StockChange struct {
	Item      *InventoryItem `json:"item"`
	Change    int            `json:"change"`
	Threshold int            `json:"threshold"`
	Low       bool           `json:"low"`
}

// Adjust records the adjustment row and applies the guarded quantity change
// in one transaction.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*StockChange, error) {
	if req.ItemID == uuid.Nil {
		return nil, fmt.Errorf("item_id is required")
	}
	if req.Change == 0 {
		return nil, fmt.Errorf("change must not be zero")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("reason is required")
	}

	adj := &Adjustment{ItemID: req.ItemID, Change: req.Change, Reason: reason, ReferenceID: req.ReferenceID}
	if req.ReferenceType != "" {
		adj.ReferenceType = &req.ReferenceType
	}
	if req.CreatedBy != "" {
		adj.CreatedBy = &req.CreatedBy
	}

	var item *InventoryItem
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.items.RecordAdjustment(ctx, adj); err != nil {
			return fmt.Errorf("record adjustment: %w", err)
		}
		var err error
		item, err = s.items.ApplyChange(ctx, req.ItemID, req.Change, req.AllowNegative)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &StockChange{
		Item:      item,
		Change:    req.Change,
		Threshold: item.Threshold(s.lowStockDefault),
		Low:       item.IsLow(s.lowStockDefault),
	}, nil
}

// Deduct removes qty units consumed by an appointment.
func (s *Service) Deduct(ctx context.Context, itemID uuid.UUID, qty int, appointmentID uuid.UUID, createdBy string, allowNegative bool) (*StockChange, error) {
	if qty < 1 {
		return nil, fmt.Errorf("deduction quantity must be at least 1")
	}
	return s.Adjust(ctx, AdjustRequest{
		ItemID:        itemID,
		Change:        -qty,
		Reason:        ReasonVisitCompletion,
		ReferenceType: "appointment",
		ReferenceID:   &appointmentID,
		CreatedBy:     createdBy,
		AllowNegative: allowNegative,
	})
}

// AdjustStock is the manual adjustment entry point. It publishes a low-stock
// event after the change is committed.
func (s *Service) AdjustStock(ctx context.Context, req AdjustRequest) (*StockChange, error) {
	change, err := s.Adjust(ctx, req)
	if err != nil {
		return nil, err
	}
	if change.Low && change.Change < 0 && s.publisher != nil {
		evt := events.New(events.TypeLowStock, db.TenantFromContext(ctx), change.Item.ID.String(), map[string]interface{}{
			"name":      change.Item.Name,
			"quantity":  change.Item.Quantity,
			"threshold": change.Threshold,
		})
		evt.ActorID = req.CreatedBy
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn().Err(err).Str("item_id", change.Item.ID.String()).Msg("publish low stock event failed")
		}
	}
	return change, nil
}
