// Package engine drives queue jobs through their workflows within a bounded
// wall-clock budget per invocation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/engine/interpreter"
	"github.com/cuongbtq/mailflow-engine/internal/metrics"
	"github.com/cuongbtq/mailflow-engine/internal/workflow"
)

const (
	defaultLease    = 5 * time.Minute
	invocationLock  = "mailflow:scheduler:invocation"
	defaultWorkerID = "scheduler"
	persistTimeout  = 5 * time.Second
)

// Config holds scheduler loop dependencies. Events, Locker and Observer are optional.
type Config struct {
	Logger   *slog.Logger
	Store    QueueStore
	Exploder Exploder
	Mailer   Mailer
	Tags     TagStore
	Content  ContentStore
	Vault    Vault
	Events   EventPublisher
	Locker   Locker
	Observer metrics.EngineObserver
	WorkerID string
	Lease    time.Duration
	Now      func() time.Time
}

// Loop is one scheduler: explode due campaigns, then drain due jobs in batches
// until the queue is empty or the budget runs out.
type Loop struct {
	logger   *slog.Logger
	store    QueueStore
	exploder Exploder
	mailer   Mailer
	tags     TagStore
	content  ContentStore
	vault    Vault
	events   EventPublisher
	locker   Locker
	observer metrics.EngineObserver
	workerID string
	lease    time.Duration
	now      func() time.Time
}

// Result summarises one invocation.
type Result struct {
	Processed       int  `json:"processed"`
	Completed       int  `json:"completed"`
	Failed          int  `json:"failed"`
	Released        int  `json:"released"`
	Exploded        int  `json:"campaigns_exploded"`
	BudgetExhausted bool `json:"budget_exhausted"`
	Skipped         bool `json:"skipped,omitempty"`
}

// NewLoop creates a scheduler loop
func NewLoop(cfg *Config) *Loop {
	l := &Loop{
		logger:   cfg.Logger,
		store:    cfg.Store,
		exploder: cfg.Exploder,
		mailer:   cfg.Mailer,
		tags:     cfg.Tags,
		content:  cfg.Content,
		vault:    cfg.Vault,
		events:   cfg.Events,
		locker:   cfg.Locker,
		observer: cfg.Observer,
		workerID: cfg.WorkerID,
		lease:    cfg.Lease,
		now:      cfg.Now,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.observer == nil {
		l.observer = metrics.Noop{}
	}
	if l.workerID == "" {
		l.workerID = defaultWorkerID
	}
	if l.lease <= 0 {
		l.lease = defaultLease
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Run performs one invocation. Jobs that fail are marked failed and never
// abort the batch; only a failure to read the queue is returned as an error.
func (l *Loop) Run(ctx context.Context, budget time.Duration, batchSize int) (Result, error) {
	var res Result
	if batchSize <= 0 {
		return res, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	start := l.now()
	defer func() {
		l.observer.ObserveInvocation(l.now().Sub(start), res.BudgetExhausted)
	}()

	if l.locker != nil {
		release, ok, err := l.locker.TryLock(ctx, invocationLock, budget+l.lease)
		switch {
		case err != nil:
			// leases still keep concurrent runs apart
			l.logger.Warn("Invocation lock unavailable, continuing without it",
				slog.String("error", err.Error()),
			)
		case !ok:
			l.logger.Info("Another invocation is running, skipping")
			res.Skipped = true
			return res, nil
		default:
			defer release()
		}
	}

	if l.exploder != nil {
		exploded, err := l.exploder.ExplodeDueCampaigns(ctx)
		if err != nil {
			l.logger.Error("Failed to explode due campaigns",
				slog.String("error", err.Error()),
			)
		}
		res.Exploded = exploded
		if exploded > 0 {
			l.observer.RecordExplosion(exploded)
		}
	}

drain:
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if l.now().Sub(start) >= budget {
			res.BudgetExhausted = true
			break
		}

		batch, err := l.store.FetchDueBatch(ctx, l.now(), batchSize, l.workerID, l.lease)
		if err != nil {
			return res, fmt.Errorf("failed to fetch due jobs: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		l.logger.Debug("Fetched due batch",
			slog.Int("size", len(batch)),
			slog.String("worker_id", l.workerID),
		)

		for i := range batch {
			if err := ctx.Err(); err != nil {
				l.release(batch[i:], &res)
				return res, err
			}
			if l.now().Sub(start) >= budget {
				res.BudgetExhausted = true
				l.release(batch[i:], &res)
				break drain
			}
			l.processJob(ctx, &batch[i], &res)
		}
	}

	l.logger.Info("Scheduler invocation finished",
		slog.Int("processed", res.Processed),
		slog.Int("completed", res.Completed),
		slog.Int("failed", res.Failed),
		slog.Int("campaigns_exploded", res.Exploded),
		slog.Bool("budget_exhausted", res.BudgetExhausted),
		slog.Duration("elapsed", l.now().Sub(start)),
	)
	return res, nil
}

// processJob advances a single claimed job by at most one step
func (l *Loop) processJob(ctx context.Context, job *domain.DueJob, res *Result) {
	decision, err := l.step(ctx, job)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// the step was cut short and runs again on the next claim
		l.release([]domain.DueJob{*job}, res)
		return
	}
	res.Processed++
	if err == nil {
		err = l.persist(ctx, func(ctx context.Context) error {
			return l.store.ApplyTransition(ctx, job.ID, l.workerID, decision, l.now())
		})
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			l.logger.Warn("Lost claim on job before transition",
				slog.String("job_id", job.ID),
				slog.String("worker_id", l.workerID),
			)
			return
		}
	}

	if err != nil {
		l.fail(ctx, job, err, res)
		return
	}

	switch decision.(type) {
	case domain.Complete:
		res.Completed++
		l.observer.RecordJob(metrics.OutcomeCompleted)
		l.logger.Info("Job completed",
			slog.String("job_id", job.ID),
			slog.String("automation_id", job.AutomationID),
		)
	case domain.Advance:
		l.observer.RecordJob(metrics.OutcomeAdvanced)
		l.logger.Debug("Job advanced",
			slog.String("job_id", job.ID),
			slog.Int("step_index", job.Payload.StepIndex+1),
		)
	}
}

// step decides the job's next move and performs its side effect, if any
func (l *Loop) step(ctx context.Context, job *domain.DueJob) (domain.Decision, error) {
	def, err := workflow.Resolve(job.Definition, job.Payload)
	if err != nil {
		return nil, domain.NewFatalError(err)
	}

	state, err := job.State()
	if err != nil {
		return nil, domain.NewFatalError(err)
	}
	pending, ok := state.(domain.Pending)
	if !ok {
		return nil, domain.NewFatalError(fmt.Errorf("%w: job is %s", domain.ErrInvalidState, state.Status()))
	}

	decision, err := interpreter.Decide(def, pending, l.now())
	if err != nil {
		return nil, domain.NewFatalError(err)
	}

	if adv, ok := decision.(domain.Advance); ok {
		if err := l.perform(ctx, job, adv.Step); err != nil {
			return nil, err
		}
	}
	return decision, nil
}

func (l *Loop) fail(ctx context.Context, job *domain.DueJob, cause error, res *Result) {
	res.Failed++
	l.observer.RecordJob(metrics.OutcomeFailed)

	l.logger.Error("Job failed",
		slog.String("job_id", job.ID),
		slog.String("automation_id", job.AutomationID),
		slog.Int("step_index", job.Payload.StepIndex),
		slog.Bool("fatal", domain.IsFatal(cause)),
		slog.String("error", cause.Error()),
	)

	reason := domain.NewFailed(cause.Error()).Reason
	err := l.persist(ctx, func(ctx context.Context) error {
		return l.store.MarkFailed(ctx, job.ID, l.workerID, reason, l.now())
	})
	if err != nil {
		// the lease expires and the reclaimer hands the job back
		l.logger.Error("Failed to mark job as failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// persist writes job state on a context detached from the caller's
// cancellation. A step whose side effect happened is always recorded.
func (l *Loop) persist(ctx context.Context, write func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return write(ctx)
}

func (l *Loop) release(jobs []domain.DueJob, res *Result) {
	if len(jobs) == 0 {
		return
	}
	ids := make([]string, len(jobs))
	for i := range jobs {
		ids[i] = jobs[i].ID
	}

	// the caller's context may already be done
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := l.store.Release(ctx, l.workerID, ids); err != nil {
		l.logger.Error("Failed to release unprocessed jobs",
			slog.Int("count", len(ids)),
			slog.String("error", err.Error()),
		)
		return
	}
	res.Released += len(ids)
	for range ids {
		l.observer.RecordJob(metrics.OutcomeReleased)
	}
	l.logger.Info("Released unprocessed jobs",
		slog.Int("count", len(ids)),
	)
}
