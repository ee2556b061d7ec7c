package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fbik/avito-monitor-app/internal/broker"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

// KafkaRelay publishes each event as an Envelope on the event topic.
type KafkaRelay struct {
	producer broker.Producer
	topic    string
}

func NewKafkaRelay(producer broker.Producer, topic string) *KafkaRelay {
	return &KafkaRelay{
		producer: producer,
		topic:    topic,
	}
}

func (k *KafkaRelay) Name() string {
	return "kafka"
}

func (k *KafkaRelay) Publish(ctx context.Context, event models.Event) error {
	envelope, err := EventEnvelope(event)
	if err != nil {
		return err
	}
	return k.producer.Publish(ctx, k.topic, envelope)
}

func (k *KafkaRelay) Close() error {
	return k.producer.Close()
}

// EventEnvelope converts an event into the broker wire format. Payloads that
// do not encode to a JSON object are stored under "value".
func EventEnvelope(event models.Event) (models.Envelope, error) {
	payload := map[string]interface{}{}
	if event.Data != nil {
		raw, err := json.Marshal(event.Data)
		if err != nil {
			return models.Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event.Kind, err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			var value interface{}
			if err := json.Unmarshal(raw, &value); err != nil {
				return models.Envelope{}, fmt.Errorf("failed to decode %s payload: %w", event.Kind, err)
			}
			payload = map[string]interface{}{"value": value}
		}
	}

	return models.Envelope{
		ID:        uuid.NewString(),
		Source:    models.SourceMonitorService,
		Type:      string(event.Kind),
		Timestamp: event.Timestamp,
		Payload:   payload,
	}, nil
}
