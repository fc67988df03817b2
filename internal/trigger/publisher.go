package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/shared/rabbitmq"
	"github.com/google/uuid"
)

// Broker is the outbound half of the message broker.
type Broker interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// Publisher puts trigger events on the broker for the worker to enroll.
type Publisher struct {
	broker Broker
	now    func() time.Time
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker, now: time.Now}
}

// PublishTrigger fills in a missing event id and timestamp, then publishes
// the event as JSON.
func (p *Publisher) PublishTrigger(ctx context.Context, ev domain.TriggerEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode trigger event: %w", err)
	}

	return p.broker.Publish(ctx, rabbitmq.Message{
		ID:          ev.EventID,
		Type:        string(ev.Kind),
		ContentType: "application/json",
		Body:        body,
	})
}

// Decode parses a trigger event published by PublishTrigger.
func Decode(body []byte) (domain.TriggerEvent, error) {
	var ev domain.TriggerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.TriggerEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}
