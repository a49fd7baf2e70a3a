package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Aliraza-monster/crosspost-automation/internal/models"
)

type JobRepository interface {
	Create(ctx context.Context, job models.AutomationJob) (models.AutomationJob, error)
	GetByID(ctx context.Context, jobID string) (models.AutomationJob, error)
	GetForUser(ctx context.Context, userID, jobID string) (models.AutomationJob, error)
	ListByUser(ctx context.Context, userID string) ([]models.AutomationJob, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.AutomationJob, error)
	CountActiveByUser(ctx context.Context, userID string) (int, error)
	SetStatus(ctx context.Context, jobID string, status models.JobStatus) error
	UpdateNextRun(ctx context.Context, jobID string, nextRunAt time.Time) error
	MarkPosted(ctx context.Context, jobID, postedURL string, postedAt, nextRunAt time.Time) error
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `
	id, user_id, name, source_platform, source_url,
	facebook_user_token, facebook_page_id, facebook_page_name, facebook_page_token,
	next_media_index, last_posted_url, last_posted_at, next_run_at, status,
	created_at, updated_at
`

func (r *jobRepository) Create(ctx context.Context, job models.AutomationJob) (models.AutomationJob, error) {
	const query = `
		INSERT INTO automation_jobs (
			user_id, name, source_platform, source_url,
			facebook_user_token, facebook_page_id, facebook_page_name, facebook_page_token,
			next_media_index, next_run_at, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)
		RETURNING id, next_media_index, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		job.UserID,
		job.Name,
		job.SourcePlatform,
		job.SourceURL,
		job.FacebookUserToken,
		job.FacebookPageID,
		job.FacebookPageName,
		job.FacebookPageToken,
		job.NextRunAt,
		job.Status,
	).Scan(&job.ID, &job.NextMediaIndex, &job.CreatedAt, &job.UpdatedAt)
	return job, err
}

func (r *jobRepository) GetByID(ctx context.Context, jobID string) (models.AutomationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM automation_jobs WHERE id = $1`
	return scanJob(r.db.QueryRowContext(ctx, query, jobID))
}

func (r *jobRepository) GetForUser(ctx context.Context, userID, jobID string) (models.AutomationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM automation_jobs WHERE id = $1 AND user_id = $2`
	return scanJob(r.db.QueryRowContext(ctx, query, jobID, userID))
}

func (r *jobRepository) ListByUser(ctx context.Context, userID string) ([]models.AutomationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM automation_jobs WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListDue selects runnable jobs for one scheduler tick. A null next_run_at
// means "due immediately" and sorts before every dated row.
func (r *jobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.AutomationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM automation_jobs
		WHERE status = 'active'
		  AND (next_run_at IS NULL OR next_run_at <= $1)
		ORDER BY next_run_at ASC NULLS FIRST
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *jobRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM automation_jobs
		WHERE user_id = $1 AND status <> 'archived'
	`, userID).Scan(&count)
	return count, err
}

func (r *jobRepository) SetStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_jobs SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, jobID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *jobRepository) UpdateNextRun(ctx context.Context, jobID string, nextRunAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_jobs SET next_run_at = $1, updated_at = NOW() WHERE id = $2
	`, nextRunAt, jobID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkPosted records a confirmed publish: the cursor advances in place so it
// can never regress, and the job is reactivated with its next 24h slot.
func (r *jobRepository) MarkPosted(ctx context.Context, jobID, postedURL string, postedAt, nextRunAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_jobs
		SET next_media_index = next_media_index + 1,
		    last_posted_url  = $1,
		    last_posted_at   = $2,
		    next_run_at      = $3,
		    status           = 'active',
		    updated_at       = NOW()
		WHERE id = $4
	`, postedURL, postedAt, nextRunAt, jobID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func scanJob(row *sql.Row) (models.AutomationJob, error) {
	var (
		job       models.AutomationJob
		postedURL sql.NullString
		postedAt  sql.NullTime
		nextRunAt sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Name,
		&job.SourcePlatform,
		&job.SourceURL,
		&job.FacebookUserToken,
		&job.FacebookPageID,
		&job.FacebookPageName,
		&job.FacebookPageToken,
		&job.NextMediaIndex,
		&postedURL,
		&postedAt,
		&nextRunAt,
		&job.Status,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return job, ErrJobNotFound
	}
	if err != nil {
		return job, err
	}
	applyNullables(&job, postedURL, postedAt, nextRunAt)
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]models.AutomationJob, error) {
	var jobs []models.AutomationJob
	for rows.Next() {
		var (
			job       models.AutomationJob
			postedURL sql.NullString
			postedAt  sql.NullTime
			nextRunAt sql.NullTime
		)
		if err := rows.Scan(
			&job.ID,
			&job.UserID,
			&job.Name,
			&job.SourcePlatform,
			&job.SourceURL,
			&job.FacebookUserToken,
			&job.FacebookPageID,
			&job.FacebookPageName,
			&job.FacebookPageToken,
			&job.NextMediaIndex,
			&postedURL,
			&postedAt,
			&nextRunAt,
			&job.Status,
			&job.CreatedAt,
			&job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		applyNullables(&job, postedURL, postedAt, nextRunAt)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func applyNullables(job *models.AutomationJob, postedURL sql.NullString, postedAt, nextRunAt sql.NullTime) {
	if postedURL.Valid {
		val := postedURL.String
		job.LastPostedURL = &val
	}
	if postedAt.Valid {
		t := postedAt.Time
		job.LastPostedAt = &t
	}
	if nextRunAt.Valid {
		t := nextRunAt.Time
		job.NextRunAt = &t
	}
}
