package quoting

import (
	"testing"

	"github.com/google/uuid"

	"orcazap_backend/internal/catalog"
)

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func TestResolveFreightNeighborhoodBeatsRange(t *testing.T) {
	centro := "Centro"
	rules := []catalog.FreightRule{
		{ID: uuid.New(), CEPStart: strPtr("01000-000"), CEPEnd: strPtr("01999-999"), BaseCents: 9000},
		{ID: uuid.New(), Neighborhood: &centro, BaseCents: 2500},
	}

	// The locator names the neighborhood; the exact match must win even
	// though a covering CEP range exists.
	result := ResolveFreight(rules, "centro", false, nil)
	if !result.Determined {
		t.Fatal("freight undetermined")
	}
	if result.Cents != 2500 {
		t.Errorf("freight = %d cents, want 2500 (neighborhood rule)", result.Cents)
	}
}

func TestResolveFreightCEPRangeContainment(t *testing.T) {
	rules := []catalog.FreightRule{
		{ID: uuid.New(), CEPStart: strPtr("01000-000"), CEPEnd: strPtr("01999-999"), BaseCents: 9000},
	}

	result := ResolveFreight(rules, "01310-100", true, nil)
	if !result.Determined || result.Cents != 9000 {
		t.Fatalf("result = %+v, want determined 9000", result)
	}

	if out := ResolveFreight(rules, "02310-100", true, nil); out.Determined {
		t.Errorf("CEP outside range matched: %+v", out)
	}
}

func TestResolveFreightNarrowestRangeWins(t *testing.T) {
	wide := uuid.New()
	narrow := uuid.New()
	rules := []catalog.FreightRule{
		{ID: wide, CEPStart: strPtr("01000-000"), CEPEnd: strPtr("09999-999"), BaseCents: 9000},
		{ID: narrow, CEPStart: strPtr("01300-000"), CEPEnd: strPtr("01399-999"), BaseCents: 4000},
	}

	result := ResolveFreight(rules, "01310-100", true, nil)
	if !result.Determined || result.Cents != 4000 {
		t.Fatalf("result = %+v, want the narrow range at 4000", result)
	}
	if result.RuleID == nil || *result.RuleID != narrow {
		t.Errorf("rule = %v, want narrow range rule", result.RuleID)
	}
}

func TestResolveFreightPerKgSurcharge(t *testing.T) {
	centro := "Centro"
	rules := []catalog.FreightRule{
		{ID: uuid.New(), Neighborhood: &centro, BaseCents: 2500, PerKgCents: i64Ptr(10)},
	}

	// 500 kg at 0.10 per kg adds 50.00 to the 25.00 base.
	result := ResolveFreight(rules, "Centro", false, i64Ptr(500_000))
	if result.Cents != 7500 {
		t.Errorf("freight = %d cents, want 7500", result.Cents)
	}

	// Unknown weight means base only, never an error.
	result = ResolveFreight(rules, "Centro", false, nil)
	if !result.Determined || result.Cents != 2500 {
		t.Errorf("result = %+v, want determined 2500", result)
	}
}

func TestResolveFreightNoMatchIsUndetermined(t *testing.T) {
	centro := "Centro"
	rules := []catalog.FreightRule{
		{ID: uuid.New(), Neighborhood: &centro, BaseCents: 2500},
		{ID: uuid.New(), CEPStart: strPtr("01000-000"), CEPEnd: strPtr("01999-999"), BaseCents: 9000},
	}

	cases := []struct {
		location string
		isCEP    bool
	}{
		{"Vila Nova", false},
		{"99999-999", true},
		{"", false},
	}
	for _, tc := range cases {
		result := ResolveFreight(rules, tc.location, tc.isCEP, nil)
		if result.Determined {
			t.Errorf("ResolveFreight(%q) = %+v, want undetermined", tc.location, result)
		}
		if result.Cents != 0 {
			t.Errorf("undetermined freight must cost zero, got %d", result.Cents)
		}
	}

	// Totality: no rules at all is still a result, not a panic or error.
	if out := ResolveFreight(nil, "Centro", false, nil); out.Determined {
		t.Errorf("empty rule set matched: %+v", out)
	}
}
