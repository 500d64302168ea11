package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turnover-cleaning/backend/internal/pricing"
	"github.com/turnover-cleaning/backend/internal/storage"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type bookingStoreStub struct {
	bookings []models.Booking
	listErr  error
	synced   map[string]time.Time
}

func (s *bookingStoreStub) ListICalEligible(ctx context.Context) ([]models.Booking, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.Booking(nil), s.bookings...), nil
}

func (s *bookingStoreStub) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	for i := range s.bookings {
		if s.bookings[i].ID == id {
			b := s.bookings[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (s *bookingStoreStub) UpdateLastICalSync(ctx context.Context, id string, at time.Time) error {
	if s.synced == nil {
		s.synced = make(map[string]time.Time)
	}
	s.synced[id] = at
	return nil
}

type ledgerStub struct {
	mu      sync.Mutex
	entries map[string]*models.ProcessedEvent
}

func ledgerKey(k models.EventKey) string {
	return fmt.Sprintf("%s|%s|%d", k.BookingID, k.EventUID, k.EventEnd.Unix())
}

func (l *ledgerStub) Get(ctx context.Context, key models.EventKey) (*models.ProcessedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[ledgerKey(key)]; ok {
		c := *e
		return &c, nil
	}
	return nil, nil
}

func (l *ledgerStub) Record(ctx context.Context, key models.EventKey) (*models.ProcessedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.entries = make(map[string]*models.ProcessedEvent)
	}
	k := ledgerKey(key)
	if _, ok := l.entries[k]; !ok {
		l.entries[k] = &models.ProcessedEvent{
			ID:        fmt.Sprintf("ledger-%d", len(l.entries)+1),
			BookingID: key.BookingID,
			EventUID:  key.EventUID,
			EventEnd:  key.EventEnd,
		}
	}
	c := *l.entries[k]
	return &c, nil
}

func (l *ledgerStub) MarkJobCreated(ctx context.Context, id, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID == id {
			e.JobCreated = true
			e.JobID = &jobID
			return nil
		}
	}
	return storage.ErrNotFound
}

func (l *ledgerStub) entry(key models.EventKey) *models.ProcessedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[ledgerKey(key)]
}

type jobStoreStub struct {
	created     []*models.Job
	bySource    map[string]*models.Job
	failCreates int
}

func (s *jobStoreStub) Create(ctx context.Context, job *models.Job) error {
	if s.failCreates > 0 {
		s.failCreates--
		return errors.New("database is locked")
	}
	if s.bySource == nil {
		s.bySource = make(map[string]*models.Job)
	}
	if job.SourceEventID != nil {
		if _, ok := s.bySource[*job.SourceEventID]; ok {
			return fmt.Errorf("inserting job: %w", storage.ErrDuplicate)
		}
	}
	job.ID = fmt.Sprintf("job-%d", len(s.created)+1)
	s.created = append(s.created, job)
	if job.SourceEventID != nil {
		s.bySource[*job.SourceEventID] = job
	}
	return nil
}

func (s *jobStoreStub) GetBySourceEvent(ctx context.Context, eventID string) (*models.Job, error) {
	return s.bySource[eventID], nil
}

type fetcherStub struct {
	feeds map[string][]models.CalendarEvent
	errs  map[string]error
}

func (f *fetcherStub) FetchCalendar(ctx context.Context, url string) ([]models.CalendarEvent, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.feeds[url], nil
}

type notifierStub struct {
	jobs      []*models.Job
	summaries []*models.SyncSummary
}

func (n *notifierStub) JobCreated(ctx context.Context, job *models.Job, booking *models.Booking) {
	n.jobs = append(n.jobs, job)
}

func (n *notifierStub) SyncCompleted(ctx context.Context, summary *models.SyncSummary) {
	n.summaries = append(n.summaries, summary)
}

type syncFixture struct {
	bookings *bookingStoreStub
	ledger   *ledgerStub
	jobs     *jobStoreStub
	fetcher  *fetcherStub
	notifier *notifierStub
	service  *SyncService
}

func newSyncFixture(bookings ...models.Booking) *syncFixture {
	f := &syncFixture{
		bookings: &bookingStoreStub{bookings: bookings},
		ledger:   &ledgerStub{},
		jobs:     &jobStoreStub{},
		fetcher:  &fetcherStub{feeds: map[string][]models.CalendarEvent{}, errs: map[string]error{}},
		notifier: &notifierStub{},
	}
	f.service = NewSyncService(f.bookings, f.ledger, f.jobs, f.fetcher, testLogger(),
		WithNotifier(f.notifier),
		WithClock(func() time.Time { return testNow }),
	)
	return f
}

func activeBooking(id string, urls ...string) models.Booking {
	return models.Booking{
		ID:              id,
		PropertyAddress: "12 Shore Rd",
		PropertyCity:    "Asheville",
		ServiceType:     pricing.ServiceVacationRental,
		Frequency:       pricing.FrequencyOneTime,
		AccessMethod:    models.AccessKeypad,
		TotalPriceCents: 15000,
		BookingStatus:   models.BookingStatusActive,
		PaymentStatus:   models.PaymentStatusCompleted,
		ICalURLs:        urls,
	}
}

func checkout(uid string, end time.Time) models.CalendarEvent {
	return models.CalendarEvent{UID: uid, Summary: "Reserved", Start: end.AddDate(0, 0, -3), End: end}
}

func TestRun_CreatesJobOnceAcrossPasses(t *testing.T) {
	f := newSyncFixture(activeBooking("b1", "https://feed/1"))
	end := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	f.fetcher.feeds["https://feed/1"] = []models.CalendarEvent{checkout("stay-1", end)}

	first, err := f.service.Run(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.True(t, first.Manual)
	assert.Equal(t, 1, first.BookingsProcessed)
	assert.Equal(t, 1, first.EventsProcessed)
	assert.Equal(t, 1, first.JobsCreated)

	job := f.jobs.created[0]
	assert.Equal(t, "b1", job.BookingID)
	assert.Equal(t, models.JobStatusNew, job.Status)
	assert.Equal(t, end, job.Date)
	assert.Equal(t, int64(15000), job.PriceCents)
	assert.Equal(t, int64(10500), job.PayoutCents)
	assert.Equal(t, "Asheville", job.City)
	assert.Contains(t, job.Notes, "b1")
	assert.Contains(t, job.Notes, "Reserved")
	assert.Contains(t, job.Notes, models.AccessKeypad.Instructions())

	second, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.JobsCreated)
	assert.Equal(t, 1, second.BookingResults[0].EventsSkipped)
	assert.Len(t, f.jobs.created, 1)

	assert.Len(t, f.notifier.jobs, 1)
	assert.Len(t, f.notifier.summaries, 2)
	assert.Equal(t, testNow, f.bookings.synced["b1"])
}

func TestRun_ShiftedCheckoutIsANewJob(t *testing.T) {
	f := newSyncFixture(activeBooking("b1", "https://feed/1"))
	end := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	f.fetcher.feeds["https://feed/1"] = []models.CalendarEvent{checkout("stay-1", end)}
	_, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)

	f.fetcher.feeds["https://feed/1"] = []models.CalendarEvent{checkout("stay-1", end.AddDate(0, 0, 2))}
	summary, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.JobsCreated)
	require.Len(t, f.jobs.created, 2)
	assert.NotEqual(t, f.jobs.created[0].Date, f.jobs.created[1].Date)
}

func TestRun_SkipsPastCheckouts(t *testing.T) {
	f := newSyncFixture(activeBooking("b1", "https://feed/1"))
	f.fetcher.feeds["https://feed/1"] = []models.CalendarEvent{
		checkout("left-yesterday", testNow.AddDate(0, 0, -1)),
		checkout("leaves-today", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)),
	}

	summary, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)

	result := summary.BookingResults[0]
	assert.Equal(t, 2, result.EventsFound)
	assert.Equal(t, 1, result.EventsProcessed)
	assert.Equal(t, 1, summary.JobsCreated)
}

func TestRun_FeedFailureIsNotFatal(t *testing.T) {
	f := newSyncFixture(
		activeBooking("broken", "https://feed/down"),
		activeBooking("healthy", "https://feed/down", "https://feed/ok"),
	)
	f.fetcher.errs["https://feed/down"] = errors.New("calendar returned status 503")
	f.fetcher.feeds["https://feed/ok"] = []models.CalendarEvent{checkout("stay-1", testNow.AddDate(0, 0, 3))}

	summary, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 2, summary.BookingsProcessed)
	assert.Equal(t, 1, summary.JobsCreated)

	broken := summary.BookingResults[0]
	assert.Equal(t, 1, broken.FeedErrors)
	assert.Equal(t, 0, broken.FeedsFetched)
	assert.Len(t, broken.Errors, 1)

	healthy := summary.BookingResults[1]
	assert.Equal(t, 1, healthy.FeedErrors)
	assert.Equal(t, 1, healthy.FeedsFetched)

	// Liveness is recorded even when every feed failed.
	assert.Contains(t, f.bookings.synced, "broken")
	assert.Contains(t, f.bookings.synced, "healthy")
}

func TestRun_RetriesEventWhoseJobFailed(t *testing.T) {
	f := newSyncFixture(activeBooking("b1", "https://feed/1"))
	event := checkout("stay-1", time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	f.fetcher.feeds["https://feed/1"] = []models.CalendarEvent{event}
	f.jobs.failCreates = 1

	first, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, first.JobsCreated)
	assert.NotEmpty(t, first.BookingResults[0].Errors)

	key := models.EventKey{BookingID: "b1", EventUID: "stay-1", EventEnd: event.End}
	entry := f.ledger.entry(key)
	require.NotNil(t, entry)
	assert.False(t, entry.JobCreated)

	second, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, second.JobsCreated)

	entry = f.ledger.entry(key)
	assert.True(t, entry.JobCreated)
	require.NotNil(t, entry.JobID)
	assert.Equal(t, f.jobs.created[0].ID, *entry.JobID)
	assert.Equal(t, "ledger-1", *f.jobs.created[0].SourceEventID)
}

func TestRun_LostRaceDoesNotCountJob(t *testing.T) {
	f := newSyncFixture(activeBooking("b1", "https://feed/1"))
	event := checkout("stay-1", time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	f.fetcher.feeds["https://feed/1"] = []models.CalendarEvent{event}

	// A concurrent pass recorded the event and created its job but has not
	// marked the ledger yet.
	key := models.EventKey{BookingID: "b1", EventUID: "stay-1", EventEnd: event.End}
	entry, err := f.ledger.Record(context.Background(), key)
	require.NoError(t, err)
	winner := &models.Job{BookingID: "b1", SourceEventID: &entry.ID}
	require.NoError(t, f.jobs.Create(context.Background(), winner))

	summary, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.JobsCreated)
	assert.Len(t, f.jobs.created, 1)
	assert.Empty(t, f.notifier.jobs)

	marked := f.ledger.entry(key)
	assert.True(t, marked.JobCreated)
	assert.Equal(t, winner.ID, *marked.JobID)
}

func TestRun_ListingFailureIsFatal(t *testing.T) {
	f := newSyncFixture()
	f.bookings.listErr = errors.New("no such table: bookings")

	summary, err := f.service.Run(context.Background(), false)
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Empty(t, f.notifier.summaries)
}

func TestRun_IgnoresIneligibleBookings(t *testing.T) {
	noURLs := activeBooking("no-urls")
	unpaid := activeBooking("unpaid", "https://feed/1")
	unpaid.PaymentStatus = models.PaymentStatusPending

	f := newSyncFixture(noURLs, unpaid)
	summary, err := f.service.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.BookingsProcessed)
	assert.Empty(t, f.bookings.synced)
}

func TestSyncBookingByID(t *testing.T) {
	paused := activeBooking("paused", "https://feed/1")
	paused.BookingStatus = models.BookingStatusPaused
	f := newSyncFixture(activeBooking("b1", "https://feed/1"), paused)
	f.fetcher.feeds["https://feed/1"] = []models.CalendarEvent{checkout("stay-1", testNow.AddDate(0, 0, 1))}

	result, err := f.service.SyncBookingByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.JobsCreated)

	_, err = f.service.SyncBookingByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.service.SyncBookingByID(context.Background(), "paused")
	assert.ErrorIs(t, err, ErrBookingNotEligible)
}

func TestCreateJobFromEvent_PayoutHasNoFloor(t *testing.T) {
	jobs := &jobStoreStub{}
	m := NewMaterializer(jobs, testLogger())
	booking := activeBooking("b1")
	booking.TotalPriceCents = 5000

	job, err := m.CreateJobFromEvent(context.Background(), &booking, checkout("stay-1", testNow), "ledger-1")
	require.NoError(t, err)

	assert.Equal(t, int64(3500), job.PayoutCents)
	assert.Less(t, job.PayoutCents, pricing.ContractorPayout(booking.TotalPriceCents))
}

func TestRun_AgainstSQLite(t *testing.T) {
	ctx := context.Background()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(ctx, db, testLogger()))

	feed := sampleFeed
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feed))
	}))
	defer srv.Close()

	bookings := storage.NewBookingRepository(db)
	booking := activeBooking("", srv.URL+"/listing.ics")
	require.NoError(t, bookings.Create(ctx, &booking))

	jobs := storage.NewJobRepository(db)
	service := NewSyncService(bookings, storage.NewLedgerRepository(db), jobs,
		NewFetcher("", 5*time.Second, testLogger()), testLogger(),
		WithClock(func() time.Time { return testNow }),
	)

	first, err := service.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.JobsCreated)

	second, err := service.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.JobsCreated)

	list, err := jobs.List(ctx, models.JobFilter{BookingID: booking.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC).Equal(list[0].Date))
	assert.Equal(t, int64(10500), list[0].PayoutCents)

	stored, err := bookings.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastICalSync)
	assert.True(t, testNow.Equal(*stored.LastICalSync))
}
