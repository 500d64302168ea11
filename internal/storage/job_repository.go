package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

// ErrInvalidTransition is returned when a job status change is not allowed.
var ErrInvalidTransition = errors.New("storage: invalid job status transition")

const jobColumns = `id, booking_id, date, price_cents, payout_cents, city, status, notes,
	source_event_id, created_at, updated_at`

// JobRepository provides data access for cleaning jobs.
type JobRepository struct {
	BaseRepository
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new job. A second job for the same source event yields
// ErrDuplicate.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	job.ID = GenerateID()
	job.CreatedAt = r.Now()
	job.UpdatedAt = job.CreatedAt
	job.Date = job.Date.UTC()
	if job.Status == "" {
		job.Status = models.JobStatusNew
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.BookingID, job.Date, job.PriceCents, job.PayoutCents, job.City,
		job.Status, job.Notes, job.SourceEventID, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting job: %w", ErrDuplicate)
		}
		return fmt.Errorf("inserting job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID. It returns nil when none exists.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return r.getJob(ctx, r.DB(), "id", id)
}

// GetBySourceEvent retrieves the job created for a ledger entry, if any.
func (r *JobRepository) GetBySourceEvent(ctx context.Context, eventID string) (*models.Job, error) {
	return r.getJob(ctx, r.DB(), "source_event_id", eventID)
}

func (r *JobRepository) getJob(ctx context.Context, q Queryable, column, value string) (*models.Job, error) {
	query, args, err := sq.Select(jobColumns).From("jobs").Where(squirrel.Eq{column: value}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building job query: %w", err)
	}

	job, err := scanJob(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}

	return job, nil
}

// List retrieves jobs matching the filter, ordered by date.
func (r *JobRepository) List(ctx context.Context, filter models.JobFilter) ([]models.Job, error) {
	builder := sq.Select(jobColumns).From("jobs").OrderBy("date ASC", "created_at ASC")

	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.City != "" {
		builder = builder.Where("city = ? COLLATE NOCASE", filter.City)
	}
	if filter.BookingID != "" {
		builder = builder.Where(squirrel.Eq{"booking_id": filter.BookingID})
	}
	if filter.From != nil {
		builder = builder.Where(squirrel.GtOrEq{"date": filter.From.UTC()})
	}
	if filter.To != nil {
		builder = builder.Where(squirrel.Lt{"date": filter.To.UTC()})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building job list query: %w", err)
	}

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, rows.Err()
}

// ListUpcoming retrieves jobs on or after from that are not cancelled.
func (r *JobRepository) ListUpcoming(ctx context.Context, from time.Time) ([]models.Job, error) {
	query, args, err := sq.Select(jobColumns).
		From("jobs").
		Where(squirrel.GtOrEq{"date": from.UTC()}).
		Where(squirrel.NotEq{"status": models.JobStatusCancelled}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building upcoming jobs query: %w", err)
	}

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying upcoming jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	return jobs, rows.Err()
}

// UpdateStatus moves a job to next, enforcing the lifecycle. It returns the
// updated job and the status it left, or a nil job if none exists.
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, next models.JobStatus) (*models.Job, models.JobStatus, error) {
	var updated *models.Job
	var previous models.JobStatus

	err := r.Transaction(ctx, func(tx *sql.Tx) error {
		job, err := r.getJob(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}

		if !job.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next)
		}

		now := r.Now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?
		`, next, now, id); err != nil {
			return fmt.Errorf("updating job status: %w", err)
		}

		previous = job.Status
		job.Status = next
		job.UpdatedAt = now
		updated = job
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return updated, previous, nil
}

// CountByStatus returns the number of jobs in each status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.DB().QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning job count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var sourceEventID sql.NullString

	err := row.Scan(
		&job.ID, &job.BookingID, &job.Date, &job.PriceCents, &job.PayoutCents,
		&job.City, &job.Status, &job.Notes, &sourceEventID,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sourceEventID.Valid {
		job.SourceEventID = &sourceEventID.String
	}
	job.Date = job.Date.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()

	return &job, nil
}
