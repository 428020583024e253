package worker

import (
	"context"
	"time"

	"orcazap_backend/internal/intake"
	"orcazap_backend/platform/config"
	"orcazap_backend/platform/logger"
)

const reconcileBatchSize = 100

// Reconciler re-enqueues inbound events that were persisted but never made
// it onto the queue, typically because Redis was down during webhook intake.
// The grace period keeps it from racing the happy path.
type Reconciler struct {
	ledger Ledger
	queue  intake.Enqueuer
	cfg    config.WorkerConfig
	log    *logger.Logger
	now    func() time.Time
}

func NewReconciler(ledger Ledger, queue intake.Enqueuer, cfg config.WorkerConfig, log *logger.Logger) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		queue:  queue,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	interval := r.cfg.GetReconcileInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.Warn("reconcile sweep failed", "error", err)
			} else if n > 0 {
				r.log.Info("reconciled stranded inbound events", "count", n)
			}
		}
	}
}

// Sweep enqueues one batch of stranded events and returns how many it
// re-queued. Enqueueing the same event twice is harmless: processing is
// idempotent on the conversation binding.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.cfg.GetReconcileGrace())

	stranded, err := r.ledger.ListUnenqueued(ctx, cutoff, reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, msg := range stranded {
		if err := r.queue.EnqueueInbound(ctx, msg.ProviderMessageID); err != nil {
			r.log.Warn("reconcile enqueue failed", "external_id", msg.ProviderMessageID, "error", err)
			continue
		}
		if err := r.ledger.MarkEnqueued(ctx, msg.ProviderMessageID, r.now()); err != nil {
			r.log.Warn("reconcile mark failed", "external_id", msg.ProviderMessageID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}
