package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// cronGrace bounds how long an invocation may outlast its budget while the
// step in flight finishes.
const cronGrace = 30 * time.Second

// Process handles GET|POST /api/cron/process
// Runs one budgeted scheduler invocation and reports what it did. The
// invocation keeps running if the cron client hangs up.
func (h *CronHandler) Process(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.budget+cronGrace)
	defer cancel()

	result, err := h.runner.Run(ctx, h.budget, h.batchSize)
	if err != nil {
		h.logger.Error("Scheduler invocation failed", slog.String("error", err.Error()))
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Health handles GET /health
func Health(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
