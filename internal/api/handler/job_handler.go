package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/mailflow-engine/internal/api/dto"
	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves a queue job owned by the caller
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Debug("GetJob called",
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	if _, err := uuid.Parse(jobID); err != nil {
		badRequest(c, "job_id must be a valid UUID")
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), userID(c), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			notFound(c, "job not found")
			return
		}
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(*job))
}

// ListJobs handles GET /api/v1/jobs
// Lists the caller's jobs, newest first, with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Debug("Invalid query parameters", slog.String("error", err.Error()))
		badRequest(c, err.Error())
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		badRequest(c, "invalid cursor")
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		UserID:       userID(c),
		AutomationID: req.AutomationID,
		ContactID:    req.ContactID,
		Status:       req.Status,
		PageSize:     req.PageSize,
		Cursor:       cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		internalError(c, err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = dto.NewJobDTO(job)
	}
	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID})
	}

	c.JSON(http.StatusOK, resp)
}
