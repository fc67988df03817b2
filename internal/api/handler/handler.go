package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/engine"
	"github.com/cuongbtq/mailflow-engine/internal/storage"
	"github.com/gin-gonic/gin"
)

// ContextUserID is the gin context key holding the authenticated tenant.
const ContextUserID = "user_id"

type JobReader interface {
	GetJob(ctx context.Context, userID, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

type AutomationReader interface {
	GetAutomation(ctx context.Context, userID, automationID string) (*domain.Automation, error)
}

type TriggerPublisher interface {
	PublishTrigger(ctx context.Context, ev domain.TriggerEvent) error
}

// Runner executes one budgeted scheduler invocation.
type Runner interface {
	Run(ctx context.Context, budget time.Duration, batchSize int) (engine.Result, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Jobs        JobReader
	Automations AutomationReader
	Publisher   TriggerPublisher
	Runner      Runner
	Budget      time.Duration
	BatchSize   int
	Health      func(ctx context.Context) error
}

// JobHandler serves job inspection
type JobHandler struct {
	logger *slog.Logger
	jobs   JobReader
}

func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{logger: deps.Logger, jobs: deps.Jobs}
}

// EventHandler accepts trigger events and hands them to the broker
type EventHandler struct {
	logger      *slog.Logger
	automations AutomationReader
	publisher   TriggerPublisher
}

func NewEventHandler(deps *Dependencies) *EventHandler {
	return &EventHandler{
		logger:      deps.Logger,
		automations: deps.Automations,
		publisher:   deps.Publisher,
	}
}

// CronHandler is the scheduler entry point for external cron services
type CronHandler struct {
	logger    *slog.Logger
	runner    Runner
	budget    time.Duration
	batchSize int
}

func NewCronHandler(deps *Dependencies) *CronHandler {
	return &CronHandler{
		logger:    deps.Logger,
		runner:    deps.Runner,
		budget:    deps.Budget,
		batchSize: deps.BatchSize,
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
