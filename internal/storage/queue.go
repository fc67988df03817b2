// Package storage is the PostgreSQL persistence layer of the engine.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/domain"
	"github.com/cuongbtq/mailflow-engine/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// insertChunk keeps multi-row inserts well under the 65535 bind parameter limit.
const insertChunk = 1000

const jobColumns = `id, automation_id, contact_id, user_id, status, execute_at,
	payload, error_message, created_at, updated_at, completed_at`

// QueueStore handles queue_jobs. Every write to a processing job is
// conditional on the caller still holding the claim.
type QueueStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewQueueStore creates a new QueueStore instance
func NewQueueStore(client *postgresql.Client, logger *slog.Logger) *QueueStore {
	return &QueueStore{
		db:     client.GetDB(),
		logger: logger,
	}
}

type dueRow struct {
	domain.Job
	Definition json.RawMessage `db:"definition"`
	Contact    domain.Contact  `db:"contact"`
}

// FetchDueBatch claims up to limit pending jobs due at now for workerID and
// returns them with their automation definition and contact.
func (s *QueueStore) FetchDueBatch(ctx context.Context, now time.Time, limit int, workerID string, lease time.Duration) ([]domain.DueJob, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM queue_jobs
			WHERE status = $1 AND execute_at <= $2
			ORDER BY execute_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE queue_jobs q
			SET status = $4,
			    claimed_by = $5,
			    lease_expires_at = $6,
			    updated_at = NOW()
			FROM due
			WHERE q.id = due.id
			RETURNING q.*
		)
		SELECT
			c.id, c.automation_id, c.contact_id, c.user_id, c.status, c.execute_at,
			c.payload, c.error_message, c.created_at, c.updated_at, c.completed_at,
			a.definition AS definition,
			COALESCE(ct.id::text, '') AS "contact.id",
			COALESCE(ct.user_id, '') AS "contact.user_id",
			COALESCE(ct.email, '') AS "contact.email",
			COALESCE(ct.first_name, '') AS "contact.first_name",
			COALESCE(ct.last_name, '') AS "contact.last_name",
			COALESCE(ct.status, '') AS "contact.status",
			COALESCE(ct.attributes, '{}'::jsonb) AS "contact.attributes"
		FROM claimed c
		LEFT JOIN automations a ON a.id = c.automation_id
		LEFT JOIN contacts ct ON ct.id = c.contact_id
		ORDER BY c.execute_at
	`

	var rows []dueRow
	err := s.db.SelectContext(ctx, &rows, query,
		domain.JobStatusPending, now, limit,
		domain.JobStatusProcessing, workerID, now.Add(lease),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due jobs: %w", err)
	}

	jobs := make([]domain.DueJob, len(rows))
	for i, r := range rows {
		jobs[i] = domain.DueJob{Job: r.Job, Definition: r.Definition, Contact: r.Contact}
	}

	if len(jobs) > 0 {
		s.logger.Debug("Claimed due jobs",
			slog.Int("count", len(jobs)),
			slog.String("worker_id", workerID),
		)
	}
	return jobs, nil
}

// ApplyTransition persists a decision for a job claimed by workerID.
func (s *QueueStore) ApplyTransition(ctx context.Context, jobID, workerID string, decision domain.Decision, now time.Time) error {
	var (
		res sql.Result
		err error
	)

	switch d := decision.(type) {
	case domain.Complete:
		res, err = s.db.ExecContext(ctx, `
			UPDATE queue_jobs
			SET status = $1,
			    completed_at = $2,
			    claimed_by = NULL,
			    lease_expires_at = NULL,
			    updated_at = NOW()
			WHERE id = $3 AND status = $4 AND claimed_by = $5
		`, domain.JobStatusCompleted, now, jobID, domain.JobStatusProcessing, workerID)
	case domain.Advance:
		res, err = s.db.ExecContext(ctx, `
			UPDATE queue_jobs
			SET status = $1,
			    execute_at = $2,
			    payload = jsonb_set(payload, '{step_index}', to_jsonb($3::int)),
			    claimed_by = NULL,
			    lease_expires_at = NULL,
			    updated_at = NOW()
			WHERE id = $4 AND status = $5 AND claimed_by = $6
		`, domain.JobStatusPending, d.NextExecuteAt, d.NextIndex, jobID, domain.JobStatusProcessing, workerID)
	default:
		return fmt.Errorf("unsupported decision %T", decision)
	}
	if err != nil {
		return fmt.Errorf("failed to apply transition: %w", err)
	}

	return requireClaimed(res, jobID)
}

// MarkFailed moves a claimed job to failed with reason as its error message.
func (s *QueueStore) MarkFailed(ctx context.Context, jobID, workerID, reason string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = $3,
		    claimed_by = NULL,
		    lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $4 AND status = $5 AND claimed_by = $6
	`, domain.JobStatusFailed, reason, now, jobID, domain.JobStatusProcessing, workerID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return requireClaimed(res, jobID)
}

// Release hands unprocessed claimed jobs back to pending without touching
// their cursor or due time.
func (s *QueueStore) Release(ctx context.Context, workerID string, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET status = $1,
		    claimed_by = NULL,
		    lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = ANY($2) AND status = $3 AND claimed_by = $4
	`, domain.JobStatusPending, pq.Array(jobIDs), domain.JobStatusProcessing, workerID)
	if err != nil {
		return fmt.Errorf("failed to release jobs: %w", err)
	}
	return nil
}

// ReclaimExpired returns jobs whose lease ran out to pending and reports how many.
func (s *QueueStore) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET status = $1,
		    claimed_by = NULL,
		    lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE status = $2 AND lease_expires_at < $3
	`, domain.JobStatusPending, domain.JobStatusProcessing, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Warn("Reclaimed jobs with expired leases",
			slog.Int64("count", n),
		)
	}
	return int(n), nil
}

// InsertJobs creates pending jobs.
func (s *QueueStore) InsertJobs(ctx context.Context, jobs []domain.NewJob) error {
	return insertJobs(ctx, s.db, jobs)
}

// HasJob reports whether the contact was ever enrolled in the automation.
func (s *QueueStore) HasJob(ctx context.Context, automationID, contactID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM queue_jobs WHERE automation_id = $1 AND contact_id = $2)`,
		automationID, contactID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return exists, nil
}

// GetJob retrieves a job by ID, scoped to userID when it is non-empty.
func (s *QueueStore) GetJob(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM queue_jobs WHERE id = $1 AND ($2 = '' OR user_id = $2)`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

type JobFilter struct {
	UserID       string
	AutomationID string
	ContactID    string
	Status       string
	PageSize     int
	Cursor       *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first, so callers can tell
// whether another page exists.
func (s *QueueStore) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM queue_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	// Filters
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.AutomationID != "" {
		query += fmt.Sprintf(" AND automation_id = $%d", argIdx)
		args = append(args, filter.AutomationID)
		argIdx++
	}

	if filter.ContactID != "" {
		query += fmt.Sprintf(" AND contact_id = $%d", argIdx)
		args = append(args, filter.ContactID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

type newJobRow struct {
	ID           string         `db:"id"`
	AutomationID string         `db:"automation_id"`
	ContactID    string         `db:"contact_id"`
	UserID       string         `db:"user_id"`
	Status       string         `db:"status"`
	ExecuteAt    time.Time      `db:"execute_at"`
	Payload      domain.Payload `db:"payload"`
}

func insertJobs(ctx context.Context, db sqlx.ExtContext, jobs []domain.NewJob) error {
	query := `
		INSERT INTO queue_jobs (id, automation_id, contact_id, user_id, status, execute_at, payload)
		VALUES (:id, :automation_id, :contact_id, :user_id, :status, :execute_at, :payload)
	`

	for start := 0; start < len(jobs); start += insertChunk {
		end := min(start+insertChunk, len(jobs))

		rows := make([]newJobRow, 0, end-start)
		for _, j := range jobs[start:end] {
			rows = append(rows, newJobRow{
				ID:           j.ID,
				AutomationID: j.AutomationID,
				ContactID:    j.ContactID,
				UserID:       j.UserID,
				Status:       string(domain.JobStatusPending),
				ExecuteAt:    j.ExecuteAt,
				Payload:      j.Payload,
			})
		}

		if _, err := sqlx.NamedExecContext(ctx, db, query, rows); err != nil {
			return fmt.Errorf("failed to insert jobs: %w", err)
		}
	}
	return nil
}

func requireClaimed(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobAlreadyClaimed, jobID)
	}
	return nil
}
