package worker

import (
	"context"
	"crypto/tls"
	"fmt"

	"orcazap_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues worker tasks. It implements intake.Enqueuer so the webhook
// pipeline can hand events to the queue without importing asynq.
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

func NewClient(cfg config.QueueConfig) (*Client, error) {
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

	maxRetry := cfg.GetAsynqMaxRetry()
	if maxRetry < 1 {
		maxRetry = 5
	}

	return &Client{
		client:   asynq.NewClient(opt),
		queue:    queue,
		maxRetry: maxRetry,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueInbound queues processing of one registered inbound event.
func (c *Client) EnqueueInbound(ctx context.Context, externalID string) error {
	task, err := NewConversationInboundTask(ConversationInboundPayload{ExternalID: externalID})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(c.maxRetry))
	return err
}

// EnqueueApprovalDecision queues the application of an operator decision.
func (c *Client) EnqueueApprovalDecision(ctx context.Context, payload ApprovalDecisionPayload) error {
	task, err := NewApprovalDecisionTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(c.maxRetry))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
