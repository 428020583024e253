package quoting

import (
	"strings"

	"github.com/google/uuid"

	"orcazap_backend/internal/catalog"
)

// FreightResult is the outcome of freight resolution. Undetermined freight is
// a legal result, not an error: the quote carries zero freight and the
// approval gate flags it for a human.
type FreightResult struct {
	Determined bool
	Cents      int64
	RuleID     *uuid.UUID
}

// ResolveFreight matches the delivery locator against the freight rules.
// Exact neighborhood matches win over postal code ranges; among multiple
// containing ranges the narrowest span wins. A per-kg surcharge applies only
// when the rule defines one and the order weight is known.
func ResolveFreight(rules []catalog.FreightRule, location string, isCEP bool, weightKgE3 *int64) FreightResult {
	normalized := strings.ToLower(strings.TrimSpace(location))
	if normalized == "" {
		return FreightResult{}
	}

	if rule := matchNeighborhood(rules, normalized); rule != nil {
		return priceRule(rule, weightKgE3)
	}

	if isCEP {
		if rule := matchCEPRange(rules, normalized); rule != nil {
			return priceRule(rule, weightKgE3)
		}
	}

	return FreightResult{}
}

func priceRule(rule *catalog.FreightRule, weightKgE3 *int64) FreightResult {
	cents := rule.BaseCents
	if rule.PerKgCents != nil && weightKgE3 != nil {
		cents += mulDiv(*rule.PerKgCents, *weightKgE3, 1000)
	}
	id := rule.ID
	return FreightResult{Determined: true, Cents: cents, RuleID: &id}
}

func matchNeighborhood(rules []catalog.FreightRule, normalized string) *catalog.FreightRule {
	for i := range rules {
		rule := &rules[i]
		if rule.Neighborhood == nil {
			continue
		}
		if strings.ToLower(strings.TrimSpace(*rule.Neighborhood)) == normalized {
			return rule
		}
	}
	return nil
}

func matchCEPRange(rules []catalog.FreightRule, location string) *catalog.FreightRule {
	cep, ok := cepDigits(location)
	if !ok {
		return nil
	}

	var best *catalog.FreightRule
	var bestSpan int64

	for i := range rules {
		rule := &rules[i]
		if rule.CEPStart == nil || rule.CEPEnd == nil {
			continue
		}
		start, okStart := cepDigits(*rule.CEPStart)
		end, okEnd := cepDigits(*rule.CEPEnd)
		if !okStart || !okEnd || cep < start || cep > end {
			continue
		}

		span := end - start
		if best == nil || span < bestSpan {
			best = rule
			bestSpan = span
		}
	}

	return best
}

// cepDigits parses a CEP like "01310-100" into its numeric value.
func cepDigits(raw string) (int64, bool) {
	var value int64
	var count int
	for _, r := range raw {
		if r < '0' || r > '9' {
			continue
		}
		value = value*10 + int64(r-'0')
		count++
	}
	if count != 8 {
		return 0, false
	}
	return value, true
}
