// Package worker runs the conversation engine: the asynq consumers for
// inbound events and approval decisions, plus the reconciliation and expiry
// sweeps.
package worker

import (
	"context"
	"fmt"

	"orcazap_backend/platform/config"
	"orcazap_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker hosts the asynq server and routes tasks to the processor.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor *Processor
	log       *logger.Logger
}

func NewWorker(cfg config.QueueConfig, processor *Processor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn("task failed, queue will redeliver", "type", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		log:       log,
	}

	mux.HandleFunc(TaskConversationInbound, w.handleConversationInbound)
	mux.HandleFunc(TaskApprovalDecision, w.handleApprovalDecision)

	return w, nil
}

func (w *Worker) handleConversationInbound(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseConversationInboundPayload(task)
	if err != nil {
		return err
	}
	return w.processor.ProcessInbound(ctx, payload.ExternalID)
}

func (w *Worker) handleApprovalDecision(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseApprovalDecisionPayload(task)
	if err != nil {
		return err
	}
	return w.processor.ProcessApprovalDecision(ctx, payload)
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("worker stopped", "error", err)
		return err
	}
	return nil
}
