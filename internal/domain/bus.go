package domain

import (
	"context"
)

// EventBus carries run requests to workers and run results to whoever
// listens. Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
//
// Work topics (TopicRunRequested) are delivered to one subscriber per
// tenant; every other topic fans out to all subscribers.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channel_buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"nats_url"`
	NATSToken         string `yaml:"nats_token"`
	NATSMaxReconnects int    `yaml:"nats_max_reconnects"`
	NATSReconnectWait int    `yaml:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup shares work topics between the workers of all nodes.
	NATSQueueGroup string `yaml:"nats_queue_group"`
}

// Standard topic names for the run pipeline.
const (
	TopicRunRequested = "settle.run.requested"
	TopicRunCompleted = "settle.run.completed"
	TopicAlert        = "settle.alert"
)

// GlobalTenant is the bus tenant a worker listens on when it serves every
// tenant. Payloads carry the real tenant.
const GlobalTenant = "_global"

// RunRequest is the payload of TopicRunRequested.
type RunRequest struct {
	RunID      string               `json:"runId"`
	TenantID   string               `json:"tenantId"`
	TraceID    string               `json:"traceId,omitempty"`
	Window     WindowKind           `json:"window"`
	Orders     []OrderRecord        `json:"orders,omitempty"`
	Receipts   map[Source][]Receipt `json:"receipts,omitempty"`
	Thresholds *Thresholds          `json:"thresholds,omitempty"`

	// Collect asks the worker to fetch the configured sources instead of
	// using inline records.
	Collect bool `json:"collect,omitempty"`
}

// RunCompleted is the payload of TopicRunCompleted.
type RunCompleted struct {
	RunID      string     `json:"runId"`
	TenantID   string     `json:"tenantId"`
	Window     WindowKind `json:"window"`
	Alerts     int        `json:"alerts"`
	Actionable int        `json:"actionable"`
	Skipped    int        `json:"skipped"`
	Partial    bool       `json:"partial"`
	Balance    Balance    `json:"balance"`
}

// AlertEvent is the payload of TopicAlert, one per actionable alert.
type AlertEvent struct {
	RunID    string `json:"runId"`
	TenantID string `json:"tenantId"`
	Alert    Alert  `json:"alert"`
}
