package completion

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dentdesk/dentdesk/internal/domain/supply"
)

// StockRisk is an item the sheet would draw below zero.
type StockRisk struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	Need      int       `json:"need"`
	Have      int       `json:"have"`
	Threshold int       `json:"threshold"`
}

// EvaluateStockRisk sums requested quantities per item across rows,
// duplicates included, and flags every item where need exceeds what is on
// hand. Rows for items missing from inventory count as zero on hand.
func EvaluateStockRisk(rows []SupplyRow, inventory []*supply.InventoryItem, fallbackThreshold int) []StockRisk {
	need := make(map[uuid.UUID]int)
	names := make(map[uuid.UUID]string)
	for _, r := range rows {
		need[r.ItemID] += r.Qty
		names[r.ItemID] = r.Name
	}
	byID := make(map[uuid.UUID]*supply.InventoryItem, len(inventory))
	for _, it := range inventory {
		byID[it.ID] = it
	}

	var risks []StockRisk
	for id, n := range need {
		have, threshold := 0, fallbackThreshold
		if it, ok := byID[id]; ok {
			have = it.Quantity
			threshold = it.Threshold(fallbackThreshold)
		}
		if n > have {
			risks = append(risks, StockRisk{ItemID: id, Name: names[id], Need: n, Have: have, Threshold: threshold})
		}
	}
	sort.Slice(risks, func(i, j int) bool {
		if risks[i].Name != risks[j].Name {
			return risks[i].Name < risks[j].Name
		}
		return risks[i].ItemID.String() < risks[j].ItemID.String()
	})
	return risks
}

func sortLow(items []LowStockItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}
