// Package catalog holds the static procedure catalog: billable dental
// procedures with their default price, chair time and consumables.
package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SupplyDefault is a consumable a procedure uses by default, per unit of the
// procedure's quantity.
type SupplyDefault struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type Procedure struct {
	Key             string          `json:"key"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes"`
	Supplies        []SupplyDefault `json:"supplies"`
}

// Uses reports whether sku is one of the procedure's default supplies.
func (p Procedure) Uses(sku string) bool {
	for _, s := range p.Supplies {
		if s.SKU == sku {
			return true
		}
	}
	return false
}

var supplyNames = map[string]string{
	"prophy_paste":      "Prophy Paste",
	"prophy_cup":        "Prophy Cup",
	"gloves":            "Nitrile Gloves",
	"mask":              "Face Mask",
	"scaler_tip":        "Scaler Tip",
	"fluoride_gel":      "Fluoride Gel",
	"fluoride_tray":     "Fluoride Tray",
	"xray_sensor_cover": "X-Ray Sensor Cover",
	"bite_wing_tab":     "Bite Wing Tab",
	"anesthetic":        "Lidocaine Cartridge",
	"needle":            "Dental Needle",
	"composite":         "Composite Resin",
	"bonding_agent":     "Bonding Agent",
	"etchant":           "Etchant Gel",
	"matrix_band":       "Matrix Band",
	"cotton_roll":       "Cotton Rolls",
	"gauze":             "Gauze Pads",
	"suture":            "Suture Kit",
	"endo_file":         "Endodontic File",
	"gutta_percha":      "Gutta Percha Points",
	"paper_point":       "Paper Points",
	"temp_filling":      "Temporary Filling Material",
	"impression_tray":   "Impression Tray",
	"alginate":          "Alginate",
	"crown_cement":      "Crown Cement",
	"sealant":           "Pit and Fissure Sealant",
	"whitening_gel":     "Whitening Gel",
}

var procedures = map[string]Procedure{
	"exam": {
		Key: "exam", Name: "Comprehensive Exam", Price: decimal.NewFromInt(75), DurationMinutes: 30,
		Supplies: []SupplyDefault{{"gloves", 2}, {"mask", 1}},
	},
	"prophylaxis": {
		Key: "prophylaxis", Name: "Prophylaxis (Cleaning)", Price: decimal.NewFromInt(120), DurationMinutes: 45,
		Supplies: []SupplyDefault{
			{"prophy_paste", 1}, {"prophy_cup", 1}, {"gloves", 2}, {"mask", 1},
			{"scaler_tip", 1}, {"fluoride_gel", 1}, {"fluoride_tray", 1},
		},
	},
	"fluoride": {
		Key: "fluoride", Name: "Fluoride Treatment", Price: decimal.NewFromInt(35), DurationMinutes: 10,
		Supplies: []SupplyDefault{{"fluoride_gel", 1}, {"fluoride_tray", 1}, {"gloves", 2}},
	},
	"xray_bitewing": {
		Key: "xray_bitewing", Name: "Bitewing X-Rays", Price: decimal.NewFromInt(60), DurationMinutes: 15,
		Supplies: []SupplyDefault{{"xray_sensor_cover", 4}, {"bite_wing_tab", 4}, {"gloves", 2}},
	},
	"filling_composite": {
		Key: "filling_composite", Name: "Composite Filling", Price: decimal.NewFromInt(180), DurationMinutes: 60,
		Supplies: []SupplyDefault{
			{"anesthetic", 1}, {"needle", 1}, {"composite", 1}, {"bonding_agent", 1},
			{"etchant", 1}, {"matrix_band", 1}, {"cotton_roll", 4}, {"gloves", 2}, {"mask", 1},
		},
	},
	"extraction": {
		Key: "extraction", Name: "Simple Extraction", Price: decimal.NewFromInt(150), DurationMinutes: 45,
		Supplies: []SupplyDefault{{"anesthetic", 2}, {"needle", 1}, {"gauze", 4}, {"gloves", 2}, {"mask", 1}},
	},
	"surgical_extraction": {
		Key: "surgical_extraction", Name: "Surgical Extraction", Price: decimal.NewFromInt(320), DurationMinutes: 75,
		Supplies: []SupplyDefault{{"anesthetic", 3}, {"needle", 2}, {"gauze", 6}, {"suture", 1}, {"gloves", 4}, {"mask", 1}},
	},
	"root_canal": {
		Key: "root_canal", Name: "Root Canal Therapy", Price: decimal.NewFromInt(850), DurationMinutes: 90,
		Supplies: []SupplyDefault{
			{"anesthetic", 2}, {"needle", 1}, {"endo_file", 6}, {"gutta_percha", 4},
			{"paper_point", 6}, {"temp_filling", 1}, {"cotton_roll", 4}, {"gloves", 2}, {"mask", 1},
		},
	},
	"crown": {
		Key: "crown", Name: "Porcelain Crown", Price: decimal.NewFromInt(1100), DurationMinutes: 90,
		Supplies: []SupplyDefault{
			{"anesthetic", 1}, {"needle", 1}, {"impression_tray", 2}, {"alginate", 1},
			{"crown_cement", 1}, {"temp_filling", 1}, {"gloves", 2}, {"mask", 1},
		},
	},
	"sealant": {
		Key: "sealant", Name: "Sealant (per tooth)", Price: decimal.NewFromInt(45), DurationMinutes: 15,
		Supplies: []SupplyDefault{{"sealant", 1}, {"etchant", 1}, {"cotton_roll", 2}, {"gloves", 2}},
	},
	"whitening": {
		Key: "whitening", Name: "In-Office Whitening", Price: decimal.NewFromInt(400), DurationMinutes: 60,
		Supplies: []SupplyDefault{{"whitening_gel", 2}, {"cotton_roll", 4}, {"gloves", 2}, {"mask", 1}},
	},
	"consultation": {
		Key: "consultation", Name: "Consultation", Price: decimal.NewFromInt(50), DurationMinutes: 20,
	},
}

// Lookup returns the procedure for key.
func Lookup(key string) (Procedure, bool) {
	p, ok := procedures[key]
	return p, ok
}

// All returns every procedure sorted by name.
func All() []Procedure {
	out := make([]Procedure, 0, len(procedures))
	for _, p := range procedures {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SupplyName resolves a SKU to the display name inventory items are matched
// against.
func SupplyName(sku string) (string, bool) {
	n, ok := supplyNames[sku]
	return n, ok
}

// MatchesInventoryName reports whether an inventory item name matches the
// display name of sku, ignoring case and surrounding space.
func MatchesInventoryName(sku, itemName string) bool {
	n, ok := supplyNames[sku]
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(itemName), n)
}
