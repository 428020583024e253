package worker

import (
	"context"
	"time"

	"orcazap_backend/internal/conversation"
	"orcazap_backend/internal/events"
	"orcazap_backend/platform/config"
	"orcazap_backend/platform/logger"
)

const expireBatchSize = 100

// Expirer closes conversations whose reply window deadline has passed. The
// customer is not messaged; expiry is silent.
type Expirer struct {
	convs  Conversations
	quotes Quotes
	txer   TxBeginner
	bus    events.Bus
	cfg    config.WorkerConfig
	log    *logger.Logger
	now    func() time.Time
}

func NewExpirer(convs Conversations, quotes Quotes, txer TxBeginner, bus events.Bus, cfg config.WorkerConfig, log *logger.Logger) *Expirer {
	return &Expirer{
		convs:  convs,
		quotes: quotes,
		txer:   txer,
		bus:    bus,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (e *Expirer) Run(ctx context.Context) error {
	interval := e.cfg.GetExpireInterval()
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := e.Sweep(ctx); err != nil {
				e.log.Warn("expire sweep failed", "error", err)
			} else if n > 0 {
				e.log.Info("expired conversations", "count", n)
			}
		}
	}
}

// Sweep expires one batch of overdue conversations and returns how many it
// closed. A conversation that moved concurrently is skipped; the next sweep
// re-reads it.
func (e *Expirer) Sweep(ctx context.Context) (int, error) {
	overdue, err := e.convs.ListExpired(ctx, e.now(), expireBatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, conv := range overdue {
		next, err := conversation.Transition(conv.State, conversation.EventWindowExpired)
		if err != nil {
			e.log.Warn("expire transition refused", "conversation_id", conv.ID.String(), "state", string(conv.State))
			continue
		}

		moved, err := e.expireOne(ctx, conv, next)
		if err != nil {
			e.log.Warn("expire failed", "conversation_id", conv.ID.String(), "error", err)
			continue
		}
		if !moved {
			continue
		}

		e.log.StateTransition(conv.ID.String(), string(conv.State), string(next), string(conversation.EventWindowExpired))
		if e.bus != nil {
			e.bus.Publish(ctx, events.ConversationTransitioned{
				BaseEvent:      events.NewBaseEvent(),
				ConversationID: conv.ID,
				From:           string(conv.State),
				To:             string(next),
				Trigger:        string(conversation.EventWindowExpired),
			})
		}
		count++
	}
	return count, nil
}

// expireOne closes one conversation and expires its live quote in the same
// transaction. A false return means another worker won the state race.
func (e *Expirer) expireOne(ctx context.Context, conv conversation.Conversation, next conversation.State) (bool, error) {
	tx, err := e.txer.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ok, err := e.convs.UpdateStateIfCurrent(ctx, tx, conv.ID, conv.State, next, nil)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := e.quotes.ExpireActiveByConversation(ctx, tx, conv.ID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
