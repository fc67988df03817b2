package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	jobs        *prometheus.CounterVec
	exploded    prometheus.Counter
	invocations *prometheus.HistogramVec
	reclaimed   prometheus.Counter
	enrollments *prometheus.CounterVec
}

var (
	jobsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailflow_jobs_processed_total",
		Help: "Queue jobs processed by the scheduler loop, by outcome",
	}, []string{"outcome"})
	explodedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_campaigns_exploded_total",
		Help: "Scheduled campaigns fanned out into queue jobs",
	})
	invocationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailflow_scheduler_invocation_seconds",
		Help:    "Wall-clock duration of scheduler loop invocations",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 60},
	}, []string{"budget_exhausted"})
	reclaimedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_jobs_reclaimed_total",
		Help: "Jobs returned to pending after their lease expired",
	})
	enrollmentCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailflow_enrollments_total",
		Help: "Contacts enrolled into automations, by trigger kind",
	}, []string{"trigger"})
)

func NewPrometheusObserver() EngineObserver {
	return &prometheusObserver{
		jobs:        jobsCounter,
		exploded:    explodedCounter,
		invocations: invocationHistogram,
		reclaimed:   reclaimedCounter,
		enrollments: enrollmentCounter,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) RecordJob(outcome string) {
	p.jobs.WithLabelValues(outcome).Inc()
}

func (p *prometheusObserver) RecordExplosion(campaigns int) {
	p.exploded.Add(float64(campaigns))
}

func (p *prometheusObserver) ObserveInvocation(duration time.Duration, budgetExhausted bool) {
	p.invocations.WithLabelValues(strconv.FormatBool(budgetExhausted)).Observe(duration.Seconds())
}

func (p *prometheusObserver) RecordReclaimed(jobs int) {
	p.reclaimed.Add(float64(jobs))
}

func (p *prometheusObserver) RecordEnrollment(trigger string, enrolled int) {
	p.enrollments.WithLabelValues(trigger).Add(float64(enrolled))
}
