package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/turnover-cleaning/backend/internal/storage/models"
)

const ledgerColumns = `id, booking_id, event_uid, event_end, job_created, job_id, created_at, updated_at`

// LedgerRepository records which calendar checkouts have been seen, so each
// produces at most one job across sync passes.
type LedgerRepository struct {
	BaseRepository
}

// NewLedgerRepository creates a new processed-event ledger repository.
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get retrieves the entry for key. It returns nil when the checkout has not
// been recorded.
func (r *LedgerRepository) Get(ctx context.Context, key models.EventKey) (*models.ProcessedEvent, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM processed_ical_events
		WHERE booking_id = ? AND event_uid = ? AND event_end = ?
	`, key.BookingID, key.EventUID, key.EventEnd.UTC())

	entry, err := scanProcessedEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying processed event: %w", err)
	}

	return entry, nil
}

// Record inserts an entry for key with job_created unset and returns it. If
// the key is already recorded the existing entry is returned unchanged.
func (r *LedgerRepository) Record(ctx context.Context, key models.EventKey) (*models.ProcessedEvent, error) {
	now := r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO processed_ical_events (id, booking_id, event_uid, event_end, job_created, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (booking_id, event_uid, event_end) DO NOTHING
	`, GenerateID(), key.BookingID, key.EventUID, key.EventEnd.UTC(), now, now)
	if err != nil {
		return nil, fmt.Errorf("recording processed event: %w", err)
	}

	entry, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("processed event %s/%s vanished after insert", key.BookingID, key.EventUID)
	}

	return entry, nil
}

// MarkJobCreated flags the entry as having produced jobID.
func (r *LedgerRepository) MarkJobCreated(ctx context.Context, id, jobID string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE processed_ical_events SET job_created = 1, job_id = ?, updated_at = ? WHERE id = ?
	`, jobID, r.Now(), id)
	if err != nil {
		return fmt.Errorf("marking processed event: %w", err)
	}

	return requireAffected(result, id)
}

// ListByBooking retrieves a booking's ledger entries, latest checkout first.
func (r *LedgerRepository) ListByBooking(ctx context.Context, bookingID string) ([]models.ProcessedEvent, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM processed_ical_events
		WHERE booking_id = ?
		ORDER BY event_end DESC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("querying processed events: %w", err)
	}
	defer rows.Close()

	var entries []models.ProcessedEvent
	for rows.Next() {
		entry, err := scanProcessedEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning processed event: %w", err)
		}
		entries = append(entries, *entry)
	}

	return entries, rows.Err()
}

func scanProcessedEvent(row rowScanner) (*models.ProcessedEvent, error) {
	var p models.ProcessedEvent
	var jobID sql.NullString

	err := row.Scan(&p.ID, &p.BookingID, &p.EventUID, &p.EventEnd, &p.JobCreated, &jobID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if jobID.Valid {
		p.JobID = &jobID.String
	}
	p.EventEnd = p.EventEnd.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	return &p, nil
}
