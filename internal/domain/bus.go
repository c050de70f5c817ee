package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (single process) or NATS (distributed intake).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `envconfig:"TYPE" default:"channel"`

	ChannelBufferSize int `envconfig:"CHANNEL_BUFFER_SIZE" default:"1000"`

	NATSUrl           string `envconfig:"NATS_URL"`
	NATSToken         string `envconfig:"NATS_TOKEN"`
	NATSMaxReconnects int    `envconfig:"NATS_MAX_RECONNECTS" default:"10"`
	NATSReconnectWait int    `envconfig:"NATS_RECONNECT_WAIT" default:"5"` // seconds

	// NATSQueueGroup spreads each topic across workers sharing the group.
	NATSQueueGroup string `envconfig:"NATS_QUEUE_GROUP" default:"tollwatch-workers"`
}

// Topics published along the intake and scoring pipeline.
const (
	TopicFileReceived   = "tollwatch.file.received"
	TopicBatchProcessed = "tollwatch.batch.processed"
	TopicBatchRejected  = "tollwatch.batch.rejected"
	TopicAlert          = "tollwatch.alert"
)
