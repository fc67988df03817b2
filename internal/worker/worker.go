// Package worker consumes trigger events from RabbitMQ and enrolls contacts,
// and hosts the periodic lease reclaimer and the cron-driven scheduler.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliverySource starts a manual-ack consumer.
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

type Enroller interface {
	Enroll(ctx context.Context, ev domain.TriggerEvent) (int, error)
}

// Config holds worker configuration. Reclaimer and Scheduler are optional.
type Config struct {
	Logger        *slog.Logger
	Source        DeliverySource
	Enroller      Enroller
	Reclaimer     *Reclaimer
	Scheduler     *Scheduler
	WorkerID      string
	Concurrency   int
	EnrollTimeout time.Duration
}

// Worker represents the background event worker
type Worker struct {
	logger        *slog.Logger
	source        DeliverySource
	enroller      Enroller
	reclaimer     *Reclaimer
	scheduler     *Scheduler
	workerID      string
	concurrency   int
	enrollTimeout time.Duration

	eventsChan chan *eventMessage
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:        cfg.Logger,
		source:        cfg.Source,
		enroller:      cfg.Enroller,
		reclaimer:     cfg.Reclaimer,
		scheduler:     cfg.Scheduler,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		enrollTimeout: cfg.EnrollTimeout,
		stopChan:      make(chan struct{}),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.enrollTimeout <= 0 {
		w.enrollTimeout = 30 * time.Second
	}
	if w.workerID == "" {
		w.workerID = "worker"
	}
	w.eventsChan = make(chan *eventMessage, w.concurrency)
	return w
}

// Start consumes events until ctx is canceled, then returns. Call Stop
// afterwards to wait for in-flight work.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("enroll_timeout", w.enrollTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	if w.reclaimer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.reclaimer.Run(ctx)
		}()
	}

	if w.scheduler != nil {
		w.scheduler.Start(ctx)
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker")
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
