package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides read access to the catalog tables.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a catalog repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LookupItemExact resolves a captured item token against the catalog by SKU
// or by exact name, case-insensitively. There is no substring or fuzzy
// matching: an unrecognized token stays unresolved and is surfaced to the
// approval gate instead of being silently matched. Returns (nil, nil) when
// nothing matches.
func (r *Repository) LookupItemExact(ctx context.Context, token string) (*Item, error) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if normalized == "" {
		return nil, nil
	}

	var item Item
	err := r.db.QueryRow(ctx, `
		SELECT id, sku, name, unit, unit_price_cents, weight_kg_e3, is_active
		FROM catalog_items
		WHERE is_active AND (lower(sku) = $1 OR lower(name) = $1)
		LIMIT 1`, normalized).
		Scan(&item.ID, &item.SKU, &item.Name, &item.Unit,
			&item.UnitPriceCents, &item.WeightKgE3, &item.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup catalog item: %w", err)
	}
	return &item, nil
}

// ListVolumeDiscounts returns all active volume discount rules.
func (r *Repository) ListVolumeDiscounts(ctx context.Context) ([]VolumeDiscount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, item_id, min_quantity_e3, discount_bps
		FROM volume_discounts
		WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("list volume discounts: %w", err)
	}
	defer rows.Close()

	var out []VolumeDiscount
	for rows.Next() {
		var d VolumeDiscount
		if err := rows.Scan(&d.ID, &d.ItemID, &d.MinQuantityE3, &d.DiscountBps); err != nil {
			return nil, fmt.Errorf("scan volume discount: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListFreightRules returns all active freight rules.
func (r *Repository) ListFreightRules(ctx context.Context) ([]FreightRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, neighborhood, cep_start, cep_end, base_cents, per_kg_cents
		FROM freight_rules
		WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("list freight rules: %w", err)
	}
	defer rows.Close()

	var out []FreightRule
	for rows.Next() {
		var f FreightRule
		if err := rows.Scan(&f.ID, &f.Neighborhood, &f.CEPStart, &f.CEPEnd, &f.BaseCents, &f.PerKgCents); err != nil {
			return nil, fmt.Errorf("scan freight rule: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetPricingPolicy returns the active pricing policy, or (nil, nil) when none
// is configured. A missing policy is an approval-gate reason, not an error.
func (r *Repository) GetPricingPolicy(ctx context.Context) (*PricingPolicy, error) {
	var p PricingPolicy
	err := r.db.QueryRow(ctx, `
		SELECT id, instant_discount_bps, margin_floor_bps, approval_ceiling_cents, approval_margin_floor_bps
		FROM pricing_policies
		WHERE is_active
		ORDER BY updated_at DESC
		LIMIT 1`).
		Scan(&p.ID, &p.InstantDiscountBps, &p.MarginFloorBps, &p.ApprovalCeilingCents, &p.ApprovalMarginFloorBps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pricing policy: %w", err)
	}
	return &p, nil
}

// LoadSnapshot reads the discount, freight and policy rules in one pass.
func (r *Repository) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	discounts, err := r.ListVolumeDiscounts(ctx)
	if err != nil {
		return nil, err
	}
	freight, err := r.ListFreightRules(ctx)
	if err != nil {
		return nil, err
	}
	policy, err := r.GetPricingPolicy(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Discounts: discounts, Freight: freight, Policy: policy}, nil
}
