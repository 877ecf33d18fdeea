package publishers

import (
	"context"
	"fmt"
)

// queueSender delivers one event through a provider SDK.
type queueSender interface {
	Send(ctx context.Context, evt Event) error
}

type senderBuilder func(ctx context.Context, q *QueuePublisherConfig, log Logger) (queueSender, error)

var senderBuilders = map[string]senderBuilder{
	QueueProviderAWSSQS: func(ctx context.Context, q *QueuePublisherConfig, log Logger) (queueSender, error) {
		return newAWSSQSSender(ctx, q.AWS, log)
	},
	QueueProviderAWSSNS: func(ctx context.Context, q *QueuePublisherConfig, log Logger) (queueSender, error) {
		return newAWSSNSSender(ctx, q.SNS, log)
	},
	QueueProviderGCP: func(ctx context.Context, q *QueuePublisherConfig, log Logger) (queueSender, error) {
		return newGCPPubSubSender(ctx, q.GCP, log)
	},
}

// queuePublisher hands article events to a cloud queue or topic.
type queuePublisher struct {
	id       string
	provider string
	sender   queueSender
}

func newQueuePublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("publisher %q missing queue configuration", cfg.ID)
	}
	build, ok := senderBuilders[cfg.Queue.Provider]
	if !ok {
		return nil, fmt.Errorf("queue provider %q is not supported", cfg.Queue.Provider)
	}
	sender, err := build(ctx, cfg.Queue, ensureLogger(log))
	if err != nil {
		return nil, fmt.Errorf("publisher %q: %w", cfg.ID, err)
	}
	return &queuePublisher{id: cfg.ID, provider: cfg.Queue.Provider, sender: sender}, nil
}

func (p *queuePublisher) ID() string   { return p.id }
func (p *queuePublisher) Type() string { return TypeQueue }

func (p *queuePublisher) Publish(ctx context.Context, evt Event) error {
	if err := p.sender.Send(ctx, evt); err != nil {
		return fmt.Errorf("%s publish: %w", p.provider, err)
	}
	return nil
}

// Close releases the sender's client when it holds one.
func (p *queuePublisher) Close() error {
	if c, ok := p.sender.(closer); ok {
		return c.Close()
	}
	return nil
}
