package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orcazap_backend/internal/audit"
	"orcazap_backend/internal/catalog"
	"orcazap_backend/internal/conversation"
	"orcazap_backend/internal/events"
	"orcazap_backend/internal/intake"
	"orcazap_backend/internal/parsing"
	"orcazap_backend/internal/quoting"
	"orcazap_backend/internal/whatsapp"
	"orcazap_backend/internal/worker"
	"orcazap_backend/platform/config"
	"orcazap_backend/platform/db"
	"orcazap_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	audit.Register(eventBus, audit.NewRepository(pool), log)

	// The reconciler re-enqueues stranded inbound events through the same
	// client the api process uses.
	queueClient, err := worker.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer queueClient.Close()

	ledger := intake.NewRepository(pool)
	convs := conversation.NewRepository(pool)
	rules := catalog.NewRepository(pool)
	quotes := quoting.NewRepository(pool)

	sender := whatsapp.NewClient(cfg, log)

	extractor := parsing.NewExtractor(cfg)
	if extractor.Enabled() {
		log.Info("llm extraction fallback enabled", "model", cfg.GetAIParserModel())
	}

	processor := worker.NewProcessor(ledger, convs, rules, quotes, pool, pool, sender, extractor, eventBus, cfg, log)

	srv, err := worker.NewWorker(cfg, processor, log)
	if err != nil {
		log.Error("failed to initialize task worker", "error", err)
		panic("failed to initialize task worker: " + err.Error())
	}

	reconciler := worker.NewReconciler(ledger, queueClient, cfg, log)
	expirer := worker.NewExpirer(convs, quotes, pool, eventBus, cfg, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return expirer.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker exited", "error", err)
		panic("worker exited: " + err.Error())
	}
	log.Info("worker stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
