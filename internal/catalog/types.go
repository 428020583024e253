// Package catalog provides read-only access to the pricing catalog: items,
// volume discounts, freight rules and the active pricing policy. Money is
// int64 cents, percentages are basis points, quantities are milli-units so
// fractional quantities like 2.5 m3 stay integral.
package catalog

import "github.com/google/uuid"

// Item is a sellable catalog entry.
type Item struct {
	ID             uuid.UUID
	SKU            string
	Name           string
	Unit           string
	UnitPriceCents int64
	WeightKgE3     *int64
	IsActive       bool
}

// VolumeDiscount grants a discount at or above a minimum quantity.
// A nil ItemID means the rule applies to every item.
type VolumeDiscount struct {
	ID            uuid.UUID
	ItemID        *uuid.UUID
	MinQuantityE3 int64
	DiscountBps   int64
}

// FreightRule prices delivery either by exact neighborhood name or by a
// postal code range. PerKgCents, when set, adds a weight surcharge.
type FreightRule struct {
	ID           uuid.UUID
	Neighborhood *string
	CEPStart     *string
	CEPEnd       *string
	BaseCents    int64
	PerKgCents   *int64
}

// PricingPolicy holds the commercial knobs for quoting and the approval gate.
type PricingPolicy struct {
	ID                     uuid.UUID
	InstantDiscountBps     int64
	MarginFloorBps         int64
	ApprovalCeilingCents   *int64
	ApprovalMarginFloorBps *int64
}

// Snapshot is the rule set read once per processing run so a quote is priced
// against a single consistent view of the catalog.
type Snapshot struct {
	Discounts []VolumeDiscount
	Freight   []FreightRule
	Policy    *PricingPolicy
}
