package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/trigger"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for {
		select {
		case <-w.stopChan:
			return

		case <-ctx.Done():
			return

		case msg := <-w.eventsChan:
			w.settle(ctx, workerName, msg)
		}
	}
}

// settle processes one message and acks or nacks its delivery.
func (w *Worker) settle(ctx context.Context, workerName string, msg *eventMessage) {
	logger := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("event_id", msg.Event.EventID),
	)

	err := w.processEvent(ctx, msg.Event)
	if err == nil {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	requeue := shouldRequeue(err, msg.Delivery.Redelivered)
	logger.Error("Event processing failed",
		slog.String("error", err.Error()),
		slog.Bool("requeue", requeue),
	)
	if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
	}
}

// shouldRequeue gives a transient failure one more delivery; a second
// failure dead-letters the message instead of looping on it.
func shouldRequeue(err error, redelivered bool) bool {
	switch {
	case errors.Is(err, trigger.ErrInvalidEvent),
		errors.Is(err, domain.ErrContactNotFound),
		errors.Is(err, domain.ErrAutomationNotFound):
		return false
	}

	var retryable *domain.RetryableError
	if errors.As(err, &retryable) {
		return !redelivered
	}
	return false
}
