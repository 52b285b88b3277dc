package messaging

import (
	"context"
)

// Broker publishes job lifecycle events for downstream consumers
// (in-app feeds, analytics). Dispatch correctness never depends on it.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Lifecycle event channels.
const (
	ChannelEnqueued = "notification.enqueued"
	ChannelSent     = "notification.sent"
	ChannelFailed   = "notification.failed"
	ChannelDelivery = "notification.delivery"
)

// NopBroker discards everything; used when Redis is not configured.
type NopBroker struct{}

func (NopBroker) Publish(context.Context, string, interface{}) error { return nil }

func (NopBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (NopBroker) Close() error { return nil }
