package router

import (
	"github.com/cuongbtq/mailflow-engine/internal/api/handler"
	"github.com/cuongbtq/mailflow-engine/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Options configures authentication and rate limiting for the router.
type Options struct {
	JWTSecret    []byte
	JWTIssuer    string
	CronUsername string
	CronPassword string

	RateLimitEnabled  bool
	RateLimiter       RateLimiter
	RequestsPerSecond float64
	Burst             int
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health(deps))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	limit := func(g *gin.RouterGroup) {
		if opts.RateLimitEnabled {
			g.Use(RateLimitMiddleware(deps.Logger, opts.RateLimiter, opts.RequestsPerSecond, opts.Burst))
		}
	}

	jobHandler := handler.NewJobHandler(deps)
	eventHandler := handler.NewEventHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// Webhooks authenticate with the automation's secret, so they are
		// limited per client IP.
		hooks := v1.Group("/webhooks")
		limit(hooks)
		hooks.POST("/:automation_id", eventHandler.Webhook)

		authed := v1.Group("")
		authed.Use(JWTMiddleware(opts.JWTSecret, opts.JWTIssuer))
		limit(authed)
		{
			authed.POST("/events", eventHandler.PublishEvent)
			authed.POST("/automations/:automation_id/enroll", eventHandler.Enroll)

			authed.GET("/jobs", jobHandler.ListJobs)
			authed.GET("/jobs/:job_id", jobHandler.GetJob)
		}
	}

	if deps.Runner != nil {
		cronHandler := handler.NewCronHandler(deps)
		cron := r.Group("/api/cron", gin.BasicAuth(gin.Accounts{opts.CronUsername: opts.CronPassword}))
		cron.GET("/process", cronHandler.Process)
		cron.POST("/process", cronHandler.Process)
	}

	return r
}

// SetupMetricsRouter serves only health and metrics, for processes
// without the public API
func SetupMetricsRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	r.GET("/health", handler.Health(deps))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
