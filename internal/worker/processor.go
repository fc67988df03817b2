package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
)

// processEvent enrolls the event's contact under the enroll timeout.
func (w *Worker) processEvent(ctx context.Context, ev domain.TriggerEvent) error {
	enrollCtx, cancel := context.WithTimeout(ctx, w.enrollTimeout)
	defer cancel()

	enrolled, err := w.enroller.Enroll(enrollCtx, ev)
	if err != nil {
		return fmt.Errorf("failed to enroll event %s: %w", ev.EventID, err)
	}

	w.logger.Info("Trigger event processed",
		slog.String("event_id", ev.EventID),
		slog.String("trigger", string(ev.Kind)),
		slog.Int("enrolled", enrolled),
	)
	return nil
}
