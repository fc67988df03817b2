package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/metrics"
)

// Reclaimable returns processing jobs with an expired lease to pending.
type Reclaimable interface {
	ReclaimExpired(ctx context.Context, now time.Time) (int, error)
}

type ReclaimerConfig struct {
	Logger   *slog.Logger
	Store    Reclaimable
	Observer metrics.EngineObserver
	Interval time.Duration
	Now      func() time.Time
}

// Reclaimer periodically recovers jobs left behind by a crashed scheduler.
type Reclaimer struct {
	logger   *slog.Logger
	store    Reclaimable
	observer metrics.EngineObserver
	interval time.Duration
	now      func() time.Time
}

func NewReclaimer(cfg *ReclaimerConfig) *Reclaimer {
	r := &Reclaimer{
		logger:   cfg.Logger,
		store:    cfg.Store,
		observer: cfg.Observer,
		interval: cfg.Interval,
		now:      cfg.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.observer == nil {
		r.observer = metrics.Noop{}
	}
	if r.interval <= 0 {
		r.interval = time.Minute
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run reclaims once per interval until ctx is canceled.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReclaimOnce(ctx); err != nil {
				r.logger.Error("Failed to reclaim expired jobs",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	n, err := r.store.ReclaimExpired(ctx, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.observer.RecordReclaimed(n)
		r.logger.Warn("Reclaimed jobs with expired lease",
			slog.Int("jobs", n),
		)
	}
	return n, nil
}
