package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/trigger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// eventMessage pairs a decoded event with the delivery to settle.
type eventMessage struct {
	Event    domain.TriggerEvent
	Delivery amqp.Delivery
}

func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
	)
	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the pool.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stopChan closed")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			ev, err := trigger.Decode(delivery.Body)
			if err != nil {
				w.logger.Error("Failed to parse trigger event",
					slog.String("message_id", delivery.MessageId),
					slog.String("error", err.Error()),
				)
				// malformed messages go to the dead-letter exchange, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}
			if ev.EventID == "" {
				ev.EventID = delivery.MessageId
			}

			select {
			case w.eventsChan <- &eventMessage{Event: ev, Delivery: delivery}:
				w.logger.Debug("Event dispatched to worker pool",
					slog.String("event_id", ev.EventID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
