// Package quoting turns a captured request into a priced quote: line pricing
// with volume discounts, freight resolution, payment discount, and the
// approval gate. The calculation functions are pure; all money is int64
// cents, percentages are basis points and quantities are milli-units, so the
// same inputs always produce byte-identical outputs.
package quoting

import (
	"github.com/google/uuid"

	"orcazap_backend/internal/catalog"
	"orcazap_backend/internal/parsing"
)

// ResolvedItem pairs one captured request line with its catalog match.
// Item is nil when the token did not resolve.
type ResolvedItem struct {
	Captured parsing.CapturedItem
	Item     *catalog.Item
}

// PricedLine is one quoted line. Unresolved lines carry the raw token with a
// zero total and are surfaced to the approval gate rather than dropped.
type PricedLine struct {
	ItemID         *uuid.UUID `json:"item_id,omitempty"`
	Name           string     `json:"name"`
	Unit           string     `json:"unit"`
	QuantityE3     int64      `json:"quantity_e3"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	DiscountBps    int64      `json:"discount_bps"`
	TotalCents     int64      `json:"total_cents"`
	Resolved       bool       `json:"resolved"`
}

// mulDiv computes a*b/d rounded half up. Intermediate products stay well
// inside int64 for realistic catalog prices and quantities.
func mulDiv(a, b, d int64) int64 {
	return (a*b + d/2) / d
}

// PriceItems prices each resolved line against the catalog snapshot and
// returns the lines plus the subtotal in cents. Unresolved items produce a
// zero-priced line with Resolved=false.
func PriceItems(items []ResolvedItem, discounts []catalog.VolumeDiscount) ([]PricedLine, int64) {
	lines := make([]PricedLine, 0, len(items))
	var subtotal int64

	for _, entry := range items {
		if entry.Item == nil {
			lines = append(lines, PricedLine{
				Name:       entry.Captured.Name,
				Unit:       entry.Captured.Unit,
				QuantityE3: entry.Captured.QuantityE3,
			})
			continue
		}

		item := entry.Item
		discountBps := bestDiscount(item.ID, entry.Captured.QuantityE3, discounts)

		gross := mulDiv(item.UnitPriceCents, entry.Captured.QuantityE3, 1000)
		total := mulDiv(gross, 10000-discountBps, 10000)

		itemID := item.ID
		lines = append(lines, PricedLine{
			ItemID:         &itemID,
			Name:           item.Name,
			Unit:           item.Unit,
			QuantityE3:     entry.Captured.QuantityE3,
			UnitPriceCents: item.UnitPriceCents,
			DiscountBps:    discountBps,
			TotalCents:     total,
			Resolved:       true,
		})
		subtotal += total
	}

	return lines, subtotal
}

// bestDiscount picks the volume discount for one line. Rules are eligible
// when the quantity meets the minimum. Item-specific rules take precedence
// over global ones; within a bracket the highest minimum wins, ties broken by
// the larger discount.
func bestDiscount(itemID uuid.UUID, quantityE3 int64, discounts []catalog.VolumeDiscount) int64 {
	var best *catalog.VolumeDiscount
	bestIsSpecific := false

	for i := range discounts {
		rule := &discounts[i]
		if quantityE3 < rule.MinQuantityE3 {
			continue
		}

		specific := rule.ItemID != nil
		if specific && *rule.ItemID != itemID {
			continue
		}

		switch {
		case best == nil:
		case specific && !bestIsSpecific:
		case !specific && bestIsSpecific:
			continue
		case rule.MinQuantityE3 < best.MinQuantityE3:
			continue
		case rule.MinQuantityE3 == best.MinQuantityE3 && rule.DiscountBps <= best.DiscountBps:
			continue
		}

		best = rule
		bestIsSpecific = specific
	}

	if best == nil {
		return 0
	}
	return best.DiscountBps
}

// TotalWeightKgE3 sums line weights in milli-kilograms. Returns nil when any
// resolved line has no catalog weight, so freight surcharges are only applied
// to fully weighable orders.
func TotalWeightKgE3(items []ResolvedItem) *int64 {
	var total int64
	for _, entry := range items {
		if entry.Item == nil {
			continue
		}
		if entry.Item.WeightKgE3 == nil {
			return nil
		}
		total += mulDiv(*entry.Item.WeightKgE3, entry.Captured.QuantityE3, 1000)
	}
	return &total
}
