package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/turnover-cleaning/backend/internal/pricing"
	"github.com/turnover-cleaning/backend/internal/storage"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

// ErrJobAlreadyExists is returned with the existing job when another sync
// pass already created a job for the same ledger entry.
var ErrJobAlreadyExists = errors.New("job already exists for calendar event")

// JobStore persists jobs.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	GetBySourceEvent(ctx context.Context, eventID string) (*models.Job, error)
}

// Materializer creates cleaning jobs from checkout events.
type Materializer struct {
	jobs   JobStore
	logger *slog.Logger
}

// NewMaterializer creates a new job materializer.
func NewMaterializer(jobs JobStore, logger *slog.Logger) *Materializer {
	return &Materializer{jobs: jobs, logger: logger}
}

// CreateJobFromEvent inserts a New job dated at the event's end for the
// ledger entry sourceEventID. Payout is the flat contractor share of the
// booking price; the minimum payout floor is not applied on this path.
func (m *Materializer) CreateJobFromEvent(ctx context.Context, booking *models.Booking, event models.CalendarEvent, sourceEventID string) (*models.Job, error) {
	job := &models.Job{
		BookingID:     booking.ID,
		Date:          event.End,
		PriceCents:    booking.TotalPriceCents,
		PayoutCents:   pricing.PayoutShare(booking.TotalPriceCents),
		City:          booking.PropertyCity,
		Status:        models.JobStatusNew,
		Notes:         jobNotes(booking, event),
		SourceEventID: &sourceEventID,
	}

	err := m.jobs.Create(ctx, job)
	if errors.Is(err, storage.ErrDuplicate) {
		existing, lookupErr := m.jobs.GetBySourceEvent(ctx, sourceEventID)
		if lookupErr != nil {
			return nil, fmt.Errorf("looking up existing job: %w", lookupErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("duplicate job for event %s but none found: %w", event.UID, err)
		}
		return existing, ErrJobAlreadyExists
	}
	if err != nil {
		m.logger.Error("failed to create job from calendar event",
			"booking_id", booking.ID, "event_uid", event.UID, "error", err)
		return nil, fmt.Errorf("creating job: %w", err)
	}

	return job, nil
}

func jobNotes(booking *models.Booking, event models.CalendarEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Turnover clean for booking %s", booking.ID)
	if booking.PropertyAddress != "" {
		fmt.Fprintf(&b, " at %s", booking.PropertyAddress)
	}
	b.WriteString(".\n")

	summary := strings.TrimSpace(event.Summary)
	if summary == "" {
		summary = "Reserved"
	}
	fmt.Fprintf(&b, "Guest checkout: %s (%s)\n", summary, event.End.UTC().Format("Mon Jan 2, 2006"))
	fmt.Fprintf(&b, "Access: %s", booking.AccessMethod.Instructions())

	return b.String()
}
