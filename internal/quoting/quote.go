package quoting

import (
	"time"

	"github.com/google/uuid"

	"orcazap_backend/internal/catalog"
	"orcazap_backend/internal/parsing"
)

// Status is the quote lifecycle status. Transitions are one-way and guarded
// in SQL by the expected current status.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusDispatched      Status = "dispatched"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
)

// Quote is the priced offer for one conversation.
type Quote struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	Status            Status
	Lines             []PricedLine
	SubtotalCents     int64
	FreightCents      int64
	FreightDetermined bool
	DiscountBps       int64
	TotalCents        int64
	MarginBps         int64
	PaymentMethod     string
	DeliveryDay       string
	ValidUntil        time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PaymentDiscount returns the basis points discount for a payment method.
// Only instant payment (PIX) is discounted.
func PaymentDiscount(policy *catalog.PricingPolicy, paymentMethod string) int64 {
	if policy == nil || paymentMethod != parsing.PaymentPIX {
		return 0
	}
	return policy.InstantDiscountBps
}

// BuildQuote assembles the quote aggregate from priced lines, freight and the
// payment discount. The discount applies to the item subtotal only; freight
// is added after. Undetermined freight contributes zero to the total and is
// recorded as such.
//
// MarginBps is the policy floor, not a computed margin. Catalog items carry
// no cost basis in this system, so the floor stands in for the real margin
// and the gate compares it against the approval threshold.
func BuildQuote(conversationID uuid.UUID, lines []PricedLine, subtotalCents int64,
	freight FreightResult, policy *catalog.PricingPolicy, paymentMethod, deliveryDay string,
	now time.Time, validity time.Duration) *Quote {

	discountBps := PaymentDiscount(policy, paymentMethod)
	discounted := mulDiv(subtotalCents, 10000-discountBps, 10000)

	var marginBps int64
	if policy != nil {
		marginBps = policy.MarginFloorBps
	}

	return &Quote{
		ID:                uuid.New(),
		ConversationID:    conversationID,
		Lines:             lines,
		SubtotalCents:     subtotalCents,
		FreightCents:      freight.Cents,
		FreightDetermined: freight.Determined,
		DiscountBps:       discountBps,
		TotalCents:        discounted + freight.Cents,
		MarginBps:         marginBps,
		PaymentMethod:     paymentMethod,
		DeliveryDay:       deliveryDay,
		ValidUntil:        now.Add(validity),
	}
}
