package quoting

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"orcazap_backend/internal/catalog"
	"orcazap_backend/internal/parsing"
)

func basePolicy() *catalog.PricingPolicy {
	return &catalog.PricingPolicy{
		ID:                 uuid.New(),
		InstantDiscountBps: 300,
		MarginFloorBps:     2000,
	}
}

func cleanQuote() *Quote {
	return &Quote{
		ID:                uuid.New(),
		ConversationID:    uuid.New(),
		Lines:             []PricedLine{{Name: "Cimento 50kg", Resolved: true, TotalCents: 42750}},
		SubtotalCents:     42750,
		FreightDetermined: true,
		TotalCents:        42750,
		MarginBps:         2000,
	}
}

func TestEvaluateCleanQuotePasses(t *testing.T) {
	reasons := Evaluate(cleanQuote(), basePolicy(), false)
	if len(reasons) != 0 {
		t.Fatalf("reasons = %v, want none", reasons)
	}
}

func TestEvaluateCeilingBreach(t *testing.T) {
	policy := basePolicy()
	policy.ApprovalCeilingCents = i64Ptr(100_000)

	quote := cleanQuote()
	quote.TotalCents = 100_001

	reasons := Evaluate(quote, policy, false)
	if len(reasons) != 1 || reasons[0] != ReasonTotalExceedsCeiling {
		t.Fatalf("reasons = %v, want [total_exceeds_ceiling]", reasons)
	}

	// Exactly at the ceiling is still automatic.
	quote.TotalCents = 100_000
	if reasons := Evaluate(quote, policy, false); len(reasons) != 0 {
		t.Errorf("total at ceiling flagged: %v", reasons)
	}
}

func TestEvaluateMarginBelowFloor(t *testing.T) {
	policy := basePolicy()
	policy.ApprovalMarginFloorBps = i64Ptr(2500)

	quote := cleanQuote()
	quote.MarginBps = 2000

	reasons := Evaluate(quote, policy, false)
	if len(reasons) != 1 || reasons[0] != ReasonMarginBelowFloor {
		t.Fatalf("reasons = %v, want [margin_below_floor]", reasons)
	}
}

func TestEvaluateAccumulatesAllReasons(t *testing.T) {
	policy := basePolicy()
	policy.ApprovalCeilingCents = i64Ptr(10_000)
	policy.ApprovalMarginFloorBps = i64Ptr(2500)

	quote := cleanQuote()
	quote.Lines = append(quote.Lines, PricedLine{Name: "pedra misteriosa"})
	quote.TotalCents = 20_000
	quote.MarginBps = 2000
	quote.FreightDetermined = false

	reasons := Evaluate(quote, policy, true)
	want := []Reason{
		ReasonUnresolvedItem,
		ReasonTotalExceedsCeiling,
		ReasonMarginBelowFloor,
		ReasonFreightUndetermined,
		ReasonAIExtractionUsed,
	}
	if len(reasons) != len(want) {
		t.Fatalf("reasons = %v, want %v", reasons, want)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Errorf("reasons[%d] = %s, want %s", i, reasons[i], want[i])
		}
	}
}

func TestEvaluateMissingPolicy(t *testing.T) {
	reasons := Evaluate(cleanQuote(), nil, false)
	if len(reasons) != 1 || reasons[0] != ReasonPolicyMissing {
		t.Fatalf("reasons = %v, want [policy_missing]", reasons)
	}
}

func TestEvaluateAIExtractionAloneForcesApproval(t *testing.T) {
	reasons := Evaluate(cleanQuote(), basePolicy(), true)
	if len(reasons) != 1 || reasons[0] != ReasonAIExtractionUsed {
		t.Fatalf("reasons = %v, want [ai_extraction_used]", reasons)
	}
}

func TestBuildQuoteAppliesPaymentDiscount(t *testing.T) {
	now := time.Now()
	freight := FreightResult{Determined: true, Cents: 2500}

	quote := BuildQuote(uuid.New(), nil, 42750, freight, basePolicy(), parsing.PaymentPIX, "Amanhã", now, 24*time.Hour)

	// 3% off 427.50 = 414.68 (rounded), plus 25.00 freight.
	if quote.DiscountBps != 300 {
		t.Errorf("discount = %d bps, want 300", quote.DiscountBps)
	}
	if quote.TotalCents != 41468+2500 {
		t.Errorf("total = %d cents, want %d", quote.TotalCents, 41468+2500)
	}
	if !quote.ValidUntil.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("valid_until = %v", quote.ValidUntil)
	}
	if quote.MarginBps != 2000 {
		t.Errorf("margin = %d bps, want policy floor 2000", quote.MarginBps)
	}
}

func TestBuildQuoteNonInstantPaymentGetsNoDiscount(t *testing.T) {
	quote := BuildQuote(uuid.New(), nil, 42750, FreightResult{Determined: true, Cents: 2500},
		basePolicy(), parsing.PaymentBoleto, "Hoje", time.Now(), 24*time.Hour)
	if quote.DiscountBps != 0 || quote.TotalCents != 45250 {
		t.Errorf("discount = %d, total = %d; want 0 and 45250", quote.DiscountBps, quote.TotalCents)
	}
}

func TestBuildQuoteWithoutPolicy(t *testing.T) {
	quote := BuildQuote(uuid.New(), nil, 42750, FreightResult{}, nil, parsing.PaymentPIX, "Hoje", time.Now(), 24*time.Hour)
	if quote.DiscountBps != 0 || quote.MarginBps != 0 {
		t.Errorf("missing policy must price flat: discount=%d margin=%d", quote.DiscountBps, quote.MarginBps)
	}
	if quote.TotalCents != 42750 {
		t.Errorf("total = %d, want 42750", quote.TotalCents)
	}
	if quote.FreightDetermined {
		t.Error("freight must stay undetermined")
	}
}
