package completion

import (
	"sort"

	"github.com/dentdesk/dentdesk/internal/domain/catalog"
	"github.com/dentdesk/dentdesk/internal/domain/supply"
)

// UnresolvedSupply is a catalog supply with no matching inventory item. It
// is reported and left out of deduction.
type UnresolvedSupply struct {
	SKU  string `json:"sku"`
	Name string `json:"name"`
	Qty  int    `json:"quantity"`
}

// AggregateSupplies sums the default supplies of every catalog line,
// skipping excluded (line, sku) pairs, and resolves each SKU to an inventory
// item by display name. Resolved rows are sorted by name.
func AggregateSupplies(lines []*ProcedureLine, overrides OverrideSet, inventory []*supply.InventoryItem) ([]SupplyRow, []UnresolvedSupply) {
	need := make(map[string]int)
	var order []string
	for _, l := range lines {
		p, ok := l.procedure()
		if !ok {
			continue
		}
		for _, d := range p.Supplies {
			if !overrides.Included(l.ID, d.SKU) {
				continue
			}
			if _, seen := need[d.SKU]; !seen {
				order = append(order, d.SKU)
			}
			need[d.SKU] += d.Qty * l.Qty
		}
	}

	var rows []SupplyRow
	var unresolved []UnresolvedSupply
	for _, sku := range order {
		qty := need[sku]
		if qty <= 0 {
			continue
		}
		name, _ := catalog.SupplyName(sku)
		item := findByName(inventory, name)
		if item == nil {
			unresolved = append(unresolved, UnresolvedSupply{SKU: sku, Name: name, Qty: qty})
			continue
		}
		rows = append(rows, SupplyRow{ItemID: item.ID, Name: item.Name, SKU: sku, Qty: qty})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	sort.SliceStable(unresolved, func(i, j int) bool { return unresolved[i].SKU < unresolved[j].SKU })
	return rows, unresolved
}

func findByName(inventory []*supply.InventoryItem, name string) *supply.InventoryItem {
	if name == "" {
		return nil
	}
	for _, it := range inventory {
		if it.NameMatches(name) {
			return it
		}
	}
	return nil
}
