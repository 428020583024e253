package audit

import (
	"context"
	"fmt"

	"orcazap_backend/internal/events"
	"orcazap_backend/platform/logger"
)

// Subscriber maps domain events to audit entries.
type Subscriber struct {
	repo *Repository
	log  *logger.Logger
}

// Register wires the subscriber onto the bus for every audited event.
func Register(bus events.Bus, repo *Repository, log *logger.Logger) *Subscriber {
	s := &Subscriber{repo: repo, log: log}

	bus.Subscribe(events.ConversationTransitioned{}.EventName(), s)
	bus.Subscribe(events.QuoteCreated{}.EventName(), s)
	bus.Subscribe(events.QuoteDispatched{}.EventName(), s)
	bus.Subscribe(events.ApprovalDecided{}.EventName(), s)

	return s
}

// Handle records one event. Errors are returned to the bus, which logs them;
// an audit failure never affects the flow that published the event.
func (s *Subscriber) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ConversationTransitioned:
		return s.repo.Record(ctx, Entry{
			EntityType: "conversation",
			EntityID:   e.ConversationID.String(),
			Action:     "state." + e.Trigger,
			Before:     map[string]string{"state": e.From},
			After:      map[string]string{"state": e.To},
		})
	case events.QuoteCreated:
		return s.repo.Record(ctx, Entry{
			EntityType: "quote",
			EntityID:   e.QuoteID.String(),
			Action:     "quote.created",
			After: map[string]any{
				"conversation_id": e.ConversationID.String(),
				"status":          e.Status,
				"total_cents":     e.TotalCents,
				"reasons":         e.Reasons,
			},
		})
	case events.QuoteDispatched:
		return s.repo.Record(ctx, Entry{
			EntityType: "quote",
			EntityID:   e.QuoteID.String(),
			Action:     "quote.dispatched",
			After: map[string]any{
				"conversation_id":     e.ConversationID.String(),
				"provider_message_id": e.ProviderMessageID,
			},
		})
	case events.ApprovalDecided:
		return s.repo.Record(ctx, Entry{
			EntityType: "approval",
			EntityID:   e.ApprovalID.String(),
			Action:     "approval." + e.Decision,
			After: map[string]any{
				"quote_id":   e.QuoteID.String(),
				"decided_by": e.DecidedBy.String(),
			},
		})
	default:
		return fmt.Errorf("audit: unexpected event %s", event.EventName())
	}
}
