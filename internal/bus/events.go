package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/settle/internal/domain"
)

// PublishJSON marshals v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// DecodeJSON unmarshals a message payload into v.
func DecodeJSON(msg *domain.Message, v any) error {
	if msg == nil || len(msg.Payload) == 0 {
		return fmt.Errorf("empty message payload")
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", msg.Topic, err)
	}
	return nil
}
