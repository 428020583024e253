// Package events provides domain event definitions for decoupled
// communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"orcazap_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// ConversationTransitioned is published after a conversation state change
// has been committed.
type ConversationTransitioned struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Trigger        string    `json:"trigger"`
}

func (e ConversationTransitioned) EventName() string { return "conversation.transitioned" }

// QuoteCreated is published after a quote row has been committed, whatever
// its initial status.
type QuoteCreated struct {
	BaseEvent
	QuoteID        uuid.UUID `json:"quoteId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Status         string    `json:"status"`
	TotalCents     int64     `json:"totalCents"`
	Reasons        []string  `json:"reasons,omitempty"`
}

func (e QuoteCreated) EventName() string { return "quote.created" }

// QuoteDispatched is published after a quote message reached the provider
// and the dispatch was committed locally.
type QuoteDispatched struct {
	BaseEvent
	QuoteID           uuid.UUID `json:"quoteId"`
	ConversationID    uuid.UUID `json:"conversationId"`
	ProviderMessageID string    `json:"providerMessageId"`
}

func (e QuoteDispatched) EventName() string { return "quote.dispatched" }

// ApprovalDecided is published after an operator decision has been applied.
type ApprovalDecided struct {
	BaseEvent
	ApprovalID uuid.UUID `json:"approvalId"`
	QuoteID    uuid.UUID `json:"quoteId"`
	Decision   string    `json:"decision"`
	DecidedBy  uuid.UUID `json:"decidedBy"`
}

func (e ApprovalDecided) EventName() string { return "approval.decided" }
