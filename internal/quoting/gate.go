package quoting

import "orcazap_backend/internal/catalog"

// Reason is one ground on which a quote needs human approval.
type Reason string

const (
	ReasonUnresolvedItem      Reason = "unresolved_item"
	ReasonTotalExceedsCeiling Reason = "total_exceeds_ceiling"
	ReasonMarginBelowFloor    Reason = "margin_below_floor"
	ReasonFreightUndetermined Reason = "freight_undetermined"
	ReasonAIExtractionUsed    Reason = "ai_extraction_used"
	ReasonPolicyMissing       Reason = "policy_missing"
)

// Evaluate runs the approval gate. It is total: it never errors and always
// returns the complete set of applicable reasons, in a fixed order, so an
// operator sees every problem at once. An empty result means the quote may
// be dispatched automatically.
func Evaluate(quote *Quote, policy *catalog.PricingPolicy, aiAssisted bool) []Reason {
	var reasons []Reason

	for _, line := range quote.Lines {
		if !line.Resolved {
			reasons = append(reasons, ReasonUnresolvedItem)
			break
		}
	}

	if policy == nil {
		reasons = append(reasons, ReasonPolicyMissing)
	} else {
		if policy.ApprovalCeilingCents != nil && quote.TotalCents > *policy.ApprovalCeilingCents {
			reasons = append(reasons, ReasonTotalExceedsCeiling)
		}
		if policy.ApprovalMarginFloorBps != nil && quote.MarginBps < *policy.ApprovalMarginFloorBps {
			reasons = append(reasons, ReasonMarginBelowFloor)
		}
	}

	if !quote.FreightDetermined {
		reasons = append(reasons, ReasonFreightUndetermined)
	}

	if aiAssisted {
		reasons = append(reasons, ReasonAIExtractionUsed)
	}

	return reasons
}

// ReasonStrings converts reasons for persistence.
func ReasonStrings(reasons []Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
