package intake

import (
	"context"
	"time"

	"orcazap_backend/platform/logger"
	"orcazap_backend/platform/phone"

	"github.com/google/uuid"
)

// Enqueuer hands a registered inbound event to the task queue.
type Enqueuer interface {
	EnqueueInbound(ctx context.Context, externalID string) error
}

// Ledger is the slice of the message store the intake pipeline writes.
type Ledger interface {
	ResolveChannel(ctx context.Context, phoneNumberID string) (*Channel, error)
	RegisterInbound(ctx context.Context, msg ExtractedMessage, channelID uuid.UUID) (bool, error)
	MarkEnqueued(ctx context.Context, externalID string, at time.Time) error
}

// Service runs the intake pipeline for one extracted message.
type Service struct {
	repo  Ledger
	queue Enqueuer
	log   *logger.Logger
}

// NewService creates the intake service.
func NewService(repo Ledger, queue Enqueuer, log *logger.Logger) *Service {
	return &Service{repo: repo, queue: queue, log: log}
}

// Receive processes one inbound message: resolve the channel, register it in
// the ledger, enqueue the processing task. Duplicates are acknowledged
// without side effects. An enqueue failure is NOT an error: the event is
// already persisted with enqueued_at NULL and the reconciliation sweep will
// pick it up, so the webhook still acks and the provider does not redeliver.
func (s *Service) Receive(ctx context.Context, msg ExtractedMessage) error {
	log := s.log.WithExternalID(msg.ExternalID)

	channel, err := s.repo.ResolveChannel(ctx, msg.PhoneNumberID)
	if err != nil {
		return err
	}
	if channel == nil {
		log.Warn("message for unknown channel dropped", "phone_number_id", msg.PhoneNumberID)
		return nil
	}

	msg.SenderPhone = phone.NormalizeE164(msg.SenderPhone)

	registered, err := s.repo.RegisterInbound(ctx, msg, channel.ID)
	if err != nil {
		return err
	}
	if !registered {
		log.DuplicateEvent(msg.ExternalID)
		return nil
	}

	if err := s.queue.EnqueueInbound(ctx, msg.ExternalID); err != nil {
		log.Warn("enqueue failed, event left for reconciliation", "error", err.Error())
		return nil
	}

	if err := s.repo.MarkEnqueued(ctx, msg.ExternalID, time.Now().UTC()); err != nil {
		// The task is already queued; the worker checkpoint absorbs the
		// duplicate the reconciler may produce.
		log.Warn("mark enqueued failed", "error", err.Error())
	}

	return nil
}
