package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/engine"
	"github.com/robfig/cron/v3"
)

// Runner executes one budgeted scheduler invocation.
type Runner interface {
	Run(ctx context.Context, budget time.Duration, batchSize int) (engine.Result, error)
}

type SchedulerConfig struct {
	Logger    *slog.Logger
	Runner    Runner
	Cadence   string
	Budget    time.Duration
	BatchSize int
}

// Scheduler invokes the runner on a cron cadence. An invocation that is
// still running when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	logger    *slog.Logger
	runner    Runner
	cron      *cron.Cron
	budget    time.Duration
	batchSize int
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cronLog := cronLogger{logger: logger}
	s := &Scheduler{
		logger:    logger,
		runner:    cfg.Runner,
		budget:    cfg.Budget,
		batchSize: cfg.BatchSize,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		)),
		ctx: context.Background(),
	}

	if _, err := s.cron.AddFunc(cfg.Cadence, s.tick); err != nil {
		return nil, fmt.Errorf("invalid scheduler cadence %q: %w", cfg.Cadence, err)
	}
	return s, nil
}

// Start begins firing; invocations run under a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info("Scheduler started",
		slog.Duration("budget", s.budget),
		slog.Int("batch_size", s.batchSize),
	)
}

// Stop cancels a running invocation and waits for it to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	res, err := s.runner.Run(s.ctx, s.budget, s.batchSize)
	if err != nil {
		s.logger.Error("Scheduler invocation failed",
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("Scheduler tick finished",
		slog.Int("processed", res.Processed),
		slog.Bool("budget_exhausted", res.BudgetExhausted),
	)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
