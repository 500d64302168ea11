package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/turnover-cleaning/backend/internal/metrics"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

var (
	// ErrBookingNotFound is returned when syncing an unknown booking.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrBookingNotEligible is returned when a booking's feeds are not polled.
	ErrBookingNotEligible = errors.New("booking is not eligible for calendar sync")
)

// BookingStore reads bookings and records poll liveness.
type BookingStore interface {
	ListICalEligible(ctx context.Context) ([]models.Booking, error)
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateLastICalSync(ctx context.Context, id string, at time.Time) error
}

// Ledger is the processed-event dedup ledger.
type Ledger interface {
	Get(ctx context.Context, key models.EventKey) (*models.ProcessedEvent, error)
	Record(ctx context.Context, key models.EventKey) (*models.ProcessedEvent, error)
	MarkJobCreated(ctx context.Context, id, jobID string) error
}

// FeedFetcher downloads and parses one calendar feed.
type FeedFetcher interface {
	FetchCalendar(ctx context.Context, url string) ([]models.CalendarEvent, error)
}

// Notifier is told about new jobs and finished passes.
type Notifier interface {
	JobCreated(ctx context.Context, job *models.Job, booking *models.Booking)
	SyncCompleted(ctx context.Context, summary *models.SyncSummary)
}

type noopNotifier struct{}

func (noopNotifier) JobCreated(context.Context, *models.Job, *models.Booking) {}
func (noopNotifier) SyncCompleted(context.Context, *models.SyncSummary)       {}

// SyncService polls booking calendars and materializes checkout jobs.
// Bookings, feeds and events are processed sequentially.
type SyncService struct {
	bookings     BookingStore
	ledger       Ledger
	fetcher      FeedFetcher
	materializer *Materializer
	notifier     Notifier
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithNotifier sets the receiver of job and pass notifications.
func WithNotifier(n Notifier) SyncOption {
	return func(s *SyncService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) SyncOption {
	return func(s *SyncService) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// NewSyncService creates a new calendar sync service.
func NewSyncService(
	bookings BookingStore,
	ledger Ledger,
	jobs JobStore,
	fetcher FeedFetcher,
	logger *slog.Logger,
	opts ...SyncOption,
) *SyncService {
	s := &SyncService{
		bookings:     bookings,
		ledger:       ledger,
		fetcher:      fetcher,
		materializer: NewMaterializer(jobs, logger),
		notifier:     noopNotifier{},
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one pass over every eligible booking. Feed and job failures
// are reported in the summary; only failing to list bookings aborts the pass.
func (s *SyncService) Run(ctx context.Context, manual bool) (*models.SyncSummary, error) {
	started := s.now()

	bookings, err := s.bookings.ListICalEligible(ctx)
	if err != nil {
		s.metrics.ObserveSyncPass(manual, false, s.now().Sub(started))
		return nil, fmt.Errorf("listing bookings for calendar sync: %w", err)
	}

	summary := &models.SyncSummary{
		Manual:         manual,
		StartedAt:      started,
		BookingResults: make([]models.BookingSyncResult, 0, len(bookings)),
	}

	for i := range bookings {
		booking := &bookings[i]
		if !booking.IsICalEligible() {
			continue
		}

		result := s.syncBooking(ctx, booking)
		summary.BookingsProcessed++
		summary.EventsProcessed += result.EventsProcessed
		summary.JobsCreated += result.JobsCreated
		summary.BookingResults = append(summary.BookingResults, result)
	}

	summary.Success = true
	summary.FinishedAt = s.now()

	s.logger.Info("calendar sync completed",
		"manual", manual,
		"bookings", summary.BookingsProcessed,
		"events", summary.EventsProcessed,
		"jobs_created", summary.JobsCreated,
		"duration", summary.FinishedAt.Sub(started),
	)
	s.metrics.ObserveSyncPass(manual, true, summary.FinishedAt.Sub(started))
	s.notifier.SyncCompleted(ctx, summary)

	return summary, nil
}

// SyncBookingByID polls a single booking's feeds.
func (s *SyncService) SyncBookingByID(ctx context.Context, id string) (*models.BookingSyncResult, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}
	if !booking.IsICalEligible() {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotEligible, id)
	}

	result := s.syncBooking(ctx, booking)
	return &result, nil
}

func (s *SyncService) syncBooking(ctx context.Context, booking *models.Booking) models.BookingSyncResult {
	result := models.BookingSyncResult{BookingID: booking.ID}
	logger := s.logger.With("booking_id", booking.ID)

	for _, url := range booking.ICalURLs {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}

		events, err := s.fetcher.FetchCalendar(ctx, url)
		if err != nil {
			logger.Warn("calendar feed skipped", "url", redactURL(url), "error", err)
			s.metrics.FeedFetched(false)
			result.FeedErrors++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		s.metrics.FeedFetched(true)
		result.FeedsFetched++
		result.EventsFound += len(events)

		for _, event := range FilterCheckouts(events, s.now()) {
			result.EventsProcessed++
			s.processEvent(ctx, booking, event, &result, logger)
		}
	}

	// Recorded even when every feed failed.
	if err := s.bookings.UpdateLastICalSync(ctx, booking.ID, s.now()); err != nil {
		logger.Error("failed to update last calendar sync", "error", err)
		result.Errors = append(result.Errors, err.Error())
	}

	return result
}

// processEvent runs one checkout through the dedup ledger. The ledger entry
// is written before the job, so a failed or interrupted creation is retried
// on the next pass.
func (s *SyncService) processEvent(ctx context.Context, booking *models.Booking, event models.CalendarEvent, result *models.BookingSyncResult, logger *slog.Logger) {
	logger = logger.With("event_uid", event.UID)
	key := models.EventKey{BookingID: booking.ID, EventUID: event.UID, EventEnd: event.End.UTC()}

	entry, err := s.ledger.Get(ctx, key)
	if err != nil {
		s.eventFailed(result, logger, "reading ledger", err)
		return
	}
	if entry != nil && entry.JobCreated {
		result.EventsSkipped++
		s.metrics.EventHandled("skipped")
		return
	}
	if entry == nil {
		entry, err = s.ledger.Record(ctx, key)
		if err != nil {
			s.eventFailed(result, logger, "recording event", err)
			return
		}
	}

	job, err := s.materializer.CreateJobFromEvent(ctx, booking, event, entry.ID)
	switch {
	case errors.Is(err, ErrJobAlreadyExists):
		logger.Info("job already created by a concurrent sync", "job_id", job.ID)
		if err := s.ledger.MarkJobCreated(ctx, entry.ID, job.ID); err != nil {
			logger.Error("failed to mark ledger entry", "error", err)
		}
		s.metrics.EventHandled("duplicate")
		return
	case err != nil:
		s.eventFailed(result, logger, "creating job", err)
		return
	}

	if err := s.ledger.MarkJobCreated(ctx, entry.ID, job.ID); err != nil {
		// The unique source event on jobs keeps the retry from duplicating.
		logger.Error("failed to mark ledger entry", "job_id", job.ID, "error", err)
		result.Errors = append(result.Errors, err.Error())
	}

	logger.Info("job created from calendar checkout", "job_id", job.ID, "date", job.Date.Format(time.DateOnly))
	result.JobsCreated++
	result.JobIDs = append(result.JobIDs, job.ID)
	s.metrics.EventHandled("created")
	s.notifier.JobCreated(ctx, job, booking)
}

func (s *SyncService) eventFailed(result *models.BookingSyncResult, logger *slog.Logger, action string, err error) {
	logger.Error("calendar event failed", "action", action, "error", err)
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", action, err))
	s.metrics.EventHandled("failed")
}
