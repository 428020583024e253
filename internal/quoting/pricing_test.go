package quoting

import (
	"testing"

	"github.com/google/uuid"

	"orcazap_backend/internal/catalog"
	"orcazap_backend/internal/parsing"
)

func resolvedItem(item *catalog.Item, quantityE3 int64) ResolvedItem {
	return ResolvedItem{
		Captured: parsing.CapturedItem{Name: item.Name, QuantityE3: quantityE3, Unit: item.Unit},
		Item:     item,
	}
}

func TestPriceItemsVolumeDiscountAtThreshold(t *testing.T) {
	cement := &catalog.Item{ID: uuid.New(), SKU: "CIM-50", Name: "Cimento 50kg", Unit: "sacos", UnitPriceCents: 4500}
	discounts := []catalog.VolumeDiscount{
		{ID: uuid.New(), MinQuantityE3: 10_000, DiscountBps: 500},
	}

	// 10 bags at 45.00 with 5% at qty >= 10 must come to exactly 427.50.
	lines, subtotal := PriceItems([]ResolvedItem{resolvedItem(cement, 10_000)}, discounts)

	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].TotalCents != 42750 {
		t.Errorf("line total = %d cents, want 42750", lines[0].TotalCents)
	}
	if lines[0].DiscountBps != 500 {
		t.Errorf("discount = %d bps, want 500", lines[0].DiscountBps)
	}
	if subtotal != 42750 {
		t.Errorf("subtotal = %d cents, want 42750", subtotal)
	}
}

func TestPriceItemsBelowThresholdGetsNoDiscount(t *testing.T) {
	cement := &catalog.Item{ID: uuid.New(), Name: "Cimento 50kg", Unit: "sacos", UnitPriceCents: 4500}
	discounts := []catalog.VolumeDiscount{
		{ID: uuid.New(), MinQuantityE3: 10_000, DiscountBps: 500},
	}

	lines, subtotal := PriceItems([]ResolvedItem{resolvedItem(cement, 9_000)}, discounts)
	if lines[0].DiscountBps != 0 || subtotal != 40500 {
		t.Errorf("got discount %d bps, subtotal %d; want 0 bps, 40500", lines[0].DiscountBps, subtotal)
	}
}

func TestPriceItemsItemSpecificRuleBeatsGlobal(t *testing.T) {
	cement := &catalog.Item{ID: uuid.New(), Name: "Cimento 50kg", Unit: "sacos", UnitPriceCents: 4500}
	discounts := []catalog.VolumeDiscount{
		// The global rule is larger but the item-specific one must win.
		{ID: uuid.New(), MinQuantityE3: 5_000, DiscountBps: 1000},
		{ID: uuid.New(), ItemID: &cement.ID, MinQuantityE3: 5_000, DiscountBps: 300},
	}

	lines, _ := PriceItems([]ResolvedItem{resolvedItem(cement, 20_000)}, discounts)
	if lines[0].DiscountBps != 300 {
		t.Errorf("discount = %d bps, want 300 (item rule takes precedence)", lines[0].DiscountBps)
	}
}

func TestPriceItemsHighestBracketWins(t *testing.T) {
	sand := &catalog.Item{ID: uuid.New(), Name: "Areia média", Unit: "m3", UnitPriceCents: 12000}
	discounts := []catalog.VolumeDiscount{
		{ID: uuid.New(), MinQuantityE3: 1_000, DiscountBps: 200},
		{ID: uuid.New(), MinQuantityE3: 5_000, DiscountBps: 600},
		{ID: uuid.New(), MinQuantityE3: 10_000, DiscountBps: 900},
	}

	lines, _ := PriceItems([]ResolvedItem{resolvedItem(sand, 7_500)}, discounts)
	if lines[0].DiscountBps != 600 {
		t.Errorf("discount = %d bps, want 600 (highest eligible bracket)", lines[0].DiscountBps)
	}
}

func TestPriceItemsBracketTieBrokenByLargerDiscount(t *testing.T) {
	sand := &catalog.Item{ID: uuid.New(), Name: "Areia média", Unit: "m3", UnitPriceCents: 12000}
	discounts := []catalog.VolumeDiscount{
		{ID: uuid.New(), MinQuantityE3: 5_000, DiscountBps: 400},
		{ID: uuid.New(), MinQuantityE3: 5_000, DiscountBps: 700},
	}

	lines, _ := PriceItems([]ResolvedItem{resolvedItem(sand, 6_000)}, discounts)
	if lines[0].DiscountBps != 700 {
		t.Errorf("discount = %d bps, want 700", lines[0].DiscountBps)
	}
}

func TestPriceItemsFractionalQuantity(t *testing.T) {
	sand := &catalog.Item{ID: uuid.New(), Name: "Areia média", Unit: "m3", UnitPriceCents: 12000}

	// 2.5 m3 at 120.00 per m3 = 300.00
	lines, subtotal := PriceItems([]ResolvedItem{resolvedItem(sand, 2_500)}, nil)
	if lines[0].TotalCents != 30000 || subtotal != 30000 {
		t.Errorf("total = %d, subtotal = %d; want 30000 both", lines[0].TotalCents, subtotal)
	}
}

func TestPriceItemsUnresolvedLineKept(t *testing.T) {
	items := []ResolvedItem{
		{Captured: parsing.CapturedItem{Name: "pedra misteriosa", QuantityE3: 1_000, Unit: "un"}},
	}

	lines, subtotal := PriceItems(items, nil)
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].Resolved {
		t.Error("unresolved line must carry Resolved=false")
	}
	if lines[0].TotalCents != 0 || subtotal != 0 {
		t.Errorf("unresolved line priced: total=%d subtotal=%d", lines[0].TotalCents, subtotal)
	}
	if lines[0].Name != "pedra misteriosa" {
		t.Errorf("raw token lost: %q", lines[0].Name)
	}
}

func TestPriceItemsDeterministic(t *testing.T) {
	cement := &catalog.Item{ID: uuid.New(), Name: "Cimento 50kg", Unit: "sacos", UnitPriceCents: 4500}
	sand := &catalog.Item{ID: uuid.New(), Name: "Areia média", Unit: "m3", UnitPriceCents: 12000}
	discounts := []catalog.VolumeDiscount{
		{ID: uuid.New(), MinQuantityE3: 10_000, DiscountBps: 500},
		{ID: uuid.New(), ItemID: &sand.ID, MinQuantityE3: 2_000, DiscountBps: 250},
	}
	items := []ResolvedItem{resolvedItem(cement, 10_000), resolvedItem(sand, 2_500)}

	_, first := PriceItems(items, discounts)
	for i := 0; i < 50; i++ {
		_, again := PriceItems(items, discounts)
		if again != first {
			t.Fatalf("run %d produced %d, first run produced %d", i, again, first)
		}
	}
}

func TestTotalWeight(t *testing.T) {
	w50 := int64(50_000) // 50 kg per bag
	cement := &catalog.Item{ID: uuid.New(), Name: "Cimento 50kg", UnitPriceCents: 4500, WeightKgE3: &w50}
	noWeight := &catalog.Item{ID: uuid.New(), Name: "Tijolo", UnitPriceCents: 150}

	weight := TotalWeightKgE3([]ResolvedItem{resolvedItem(cement, 10_000)})
	if weight == nil || *weight != 500_000 {
		t.Fatalf("weight = %v, want 500000 (500 kg)", weight)
	}

	if TotalWeightKgE3([]ResolvedItem{resolvedItem(cement, 10_000), resolvedItem(noWeight, 1_000)}) != nil {
		t.Error("weight must be unknown when any resolved line has no catalog weight")
	}
}
