// Package bus provides event bus implementations for Settle.
package bus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/settle/internal/domain"
)

// Sentinel errors shared by the bus implementations.
var (
	ErrTenantRequired = errors.New("tenantID is required")
	ErrInvalidTenant  = errors.New("tenantID must not contain '.', '*', '>' or whitespace")
	ErrClosed         = errors.New("bus is closed")

	// ErrNoSubscribers is returned when a work topic message has nobody to
	// take it. Only the channel bus can tell.
	ErrNoSubscribers = errors.New("no subscriber for work topic")
)

// workTopics are consumed by exactly one subscriber.
var workTopics = map[string]bool{
	domain.TopicRunRequested: true,
}

// IsWorkTopic reports whether topic is delivered to a single subscriber
// instead of fanned out.
func IsWorkTopic(topic string) bool {
	return workTopics[topic]
}

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// ValidateTenant checks that tenantID can be used as a single subject
// token. Both buses apply it so a tenant works the same on every tier.
func ValidateTenant(tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if strings.ContainsAny(tenantID, ".*> \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}
	return nil
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}
