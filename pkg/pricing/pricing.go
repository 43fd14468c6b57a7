// Package pricing computes per-line and cart-level totals. All
// functions are pure; inputs are assumed structurally valid and
// rejected at the API boundary, not here.
package pricing

import (
	"github.com/example/deliverydash/pkg/models"
)

// SelectedOption is one option pick annotated with whether it is billed
// as an extra. Classification depends on selection order: picks at
// index < IncludedCount ride free, later ones are billed. Removing and
// re-adding an option therefore changes which entries are billed.
type SelectedOption struct {
	Name  string `json:"name"`
	Extra bool   `json:"extra"`
}

// Classify annotates a group's selections in selection order.
func Classify(group models.OptionGroup, selected []string) []SelectedOption {
	out := make([]SelectedOption, len(selected))
	for i, name := range selected {
		out[i] = SelectedOption{Name: name, Extra: i >= group.IncludedCount}
	}
	return out
}

// ExtrasPrice returns the unit surcharge for one cart line: for every
// referenced option group, selections beyond the free allotment are
// billed at the group's per-extra price.
func ExtrasPrice(line models.CartLine) float64 {
	var total float64
	for groupID, selected := range line.Options {
		group := line.Product.Group(groupID)
		if group == nil {
			continue
		}
		extras := len(selected) - group.IncludedCount
		if extras < 0 {
			extras = 0
		}
		total += float64(extras) * group.PricePerExtra
	}
	return total
}

// LineTotal returns (base price + unit extras) * quantity.
func LineTotal(line models.CartLine) float64 {
	return (line.Product.Price + ExtrasPrice(line)) * float64(line.Quantity)
}

// CartTotals prices the whole cart. The delivery fee is passed in by
// the caller (it depends on the destination, not the cart) and folded
// into the grand total.
func CartTotals(lines []models.CartLine, distanceKm *float64, deliveryFee float64) models.CartTotals {
	totals := models.CartTotals{
		Lines:       make([]models.LineTotals, len(lines)),
		DistanceKm:  distanceKm,
		DeliveryFee: deliveryFee,
	}
	for i, line := range lines {
		lt := models.LineTotals{
			UnitExtras: ExtrasPrice(line),
			Total:      LineTotal(line),
		}
		totals.Lines[i] = lt
		totals.Subtotal += lt.Total
	}
	totals.Total = totals.Subtotal + deliveryFee
	return totals
}
