package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnover-cleaning/backend/internal/calendar"
	"github.com/turnover-cleaning/backend/internal/events"
	"github.com/turnover-cleaning/backend/internal/metrics"
	"github.com/turnover-cleaning/backend/internal/pricing"
	"github.com/turnover-cleaning/backend/internal/storage"
	"github.com/turnover-cleaning/backend/internal/storage/models"
	"github.com/turnover-cleaning/backend/internal/websocket"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

const checkoutFeed = `BEGIN:VCALENDAR
BEGIN:VEVENT
UID:stay-1
DTSTART:20261017
DTEND:20261020
SUMMARY:Reserved
END:VEVENT
BEGIN:VEVENT
UID:stay-0
DTSTART:20261001
DTEND:20261004
SUMMARY:Reserved
END:VEVENT
END:VCALENDAR
`

type testEnv struct {
	router   http.Handler
	bookings *storage.BookingRepository
	jobs     *storage.JobRepository
	feedURL  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(ctx, db, logger))

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(checkoutFeed))
	}))
	t.Cleanup(feed.Close)

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	m := metrics.New()
	bookings := storage.NewBookingRepository(db)
	jobs := storage.NewJobRepository(db)
	dispatcher := events.NewDispatcher(websocket.NewEventBroadcaster(hub, logger), nil, m, logger)
	syncService := calendar.NewSyncService(bookings, storage.NewLedgerRepository(db), jobs,
		calendar.NewFetcher("", 5*time.Second, logger), logger,
		calendar.WithNotifier(dispatcher),
		calendar.WithMetrics(m),
		calendar.WithClock(func() time.Time { return testNow }),
	)

	router := NewRouter(Services{
		DB:          db,
		Bookings:    bookings,
		Jobs:        jobs,
		Pricing:     pricing.NewEngine(pricing.DefaultConfig()),
		Hub:         hub,
		SyncService: syncService,
		Dispatcher:  dispatcher,
		Metrics:     m,
		Logger:      logger,
		Now:         func() time.Time { return testNow },
	})

	return &testEnv{router: router, bookings: bookings, jobs: jobs, feedURL: feed.URL + "/listing/secret.ics"}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func bookingBody(feedURL string) map[string]any {
	return map[string]any{
		"customer_email":   "host@example.com",
		"property_address": "12 Shore Rd",
		"property_city":    "Asheville",
		"beds":             1,
		"baths":            1,
		"sqft":             800,
		"service_type":     "vacation_rental",
		"frequency":        "one-time",
		"access_method":    "lockbox",
		"ical_urls":        []string{feedURL},
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/quote", map[string]any{
		"beds":         2,
		"baths":        2,
		"sqft":         800,
		"frequency":    "weekly",
		"service_type": "residential",
		"add_ons":      map[string]any{"hot_tub_full_clean": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := decode[map[string]any](t, rec)
	assert.EqualValues(t, 12750, q["per_cleaning_cents"])
	assert.EqualValues(t, 5000, q["first_clean_surcharge_cents"])
	assert.EqualValues(t, 17750, q["first_charge_cents"])
	assert.EqualValues(t, 8925, q["contractor_payout_cents"])
	assert.Equal(t, "$127.50", q["per_cleaning"])
}

func TestQuote_RejectsUnknownFrequency(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/quote", map[string]any{
		"beds": 2, "baths": 2, "sqft": 800,
		"frequency":    "fortnightly",
		"service_type": "residential",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuote_SizeBounds(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/quote", map[string]any{
		"beds": 2, "baths": 2, "sqft": 0,
		"frequency":    "one-time",
		"service_type": "residential",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 15000, decode[map[string]any](t, rec)["per_cleaning_cents"])

	for _, body := range []map[string]any{
		{"beds": 0, "baths": 2, "sqft": 800, "service_type": "residential"},
		{"beds": 2, "baths": 0, "sqft": 800, "service_type": "residential"},
		{"beds": 2, "baths": 2, "sqft": -5, "service_type": "residential"},
	} {
		rec := env.do(t, http.MethodPost, "/api/quote", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v", body)
	}
}

func TestCreateBooking_ZeroSqft(t *testing.T) {
	env := newTestEnv(t)

	body := bookingBody(env.feedURL)
	body["sqft"] = 0
	rec := env.do(t, http.MethodPost, "/api/bookings", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(10000), decode[models.Booking](t, rec).TotalPriceCents)
}

func TestPricingGrid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/pricing", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	grid := decode[pricing.Config](t, rec)
	assert.Equal(t, 3000, grid.CustomQuoteSqft)
}

func TestCreateBooking_CustomQuote(t *testing.T) {
	env := newTestEnv(t)

	body := bookingBody(env.feedURL)
	body["sqft"] = 3200
	rec := env.do(t, http.MethodPost, "/api/bookings", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	b := decode[models.Booking](t, rec)
	assert.Equal(t, models.BookingStatusPendingQuote, b.BookingStatus)
	assert.Zero(t, b.TotalPriceCents)
}

func TestCreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"bad email", func(b map[string]any) { b["customer_email"] = "nope" }},
		{"missing city", func(b map[string]any) { b["property_city"] = " " }},
		{"unknown access method", func(b map[string]any) { b["access_method"] = "window" }},
		{"ftp feed", func(b map[string]any) { b["ical_urls"] = []string{"ftp://example.com/a.ics"} }},
		{"negative sqft", func(b map[string]any) { b["sqft"] = -1 }},
		{"zero beds", func(b map[string]any) { b["beds"] = 0 }},
		{"zero baths", func(b map[string]any) { b["baths"] = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bookingBody(env.feedURL)
			tt.mutate(body)
			rec := env.do(t, http.MethodPost, "/api/bookings", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestUpdateBookingICalURLs_RewritesWebcal(t *testing.T) {
	env := newTestEnv(t)
	b := decode[models.Booking](t, env.do(t, http.MethodPost, "/api/bookings", bookingBody(env.feedURL)))

	rec := env.do(t, http.MethodPut, "/api/bookings/"+b.ID+"/ical-urls", map[string]any{
		"ical_urls": []string{"webcal://www.airbnb.com/calendar/ical/1.ics?s=abc", " ", "webcal://www.airbnb.com/calendar/ical/1.ics?s=abc"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[models.Booking](t, rec)
	assert.Equal(t, []string{"https://www.airbnb.com/calendar/ical/1.ics?s=abc"}, updated.ICalURLs)

	rec = env.do(t, http.MethodPut, "/api/bookings/missing/ical-urls", map[string]any{"ical_urls": []string{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncFlow(t *testing.T) {
	env := newTestEnv(t)

	b := decode[models.Booking](t, env.do(t, http.MethodPost, "/api/bookings", bookingBody(env.feedURL)))
	assert.Equal(t, int64(10000), b.TotalPriceCents)

	// Unpaid bookings are not polled.
	rec := env.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/sync", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/bookings/"+b.ID+"/status", map[string]any{
		"booking_status": "active",
		"payment_status": "completed",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/ical/sync", map[string]any{"manual": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[models.SyncSummary](t, rec)
	assert.True(t, summary.Success)
	assert.True(t, summary.Manual)
	assert.Equal(t, 1, summary.BookingsProcessed)
	assert.Equal(t, 1, summary.JobsCreated)

	// A second pass finds the checkout in the ledger.
	rec = env.do(t, http.MethodPost, "/api/ical/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[models.SyncSummary](t, rec).JobsCreated)

	rec = env.do(t, http.MethodGet, "/api/jobs?booking_id="+b.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[[]models.Job](t, rec)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, models.JobStatusNew, job.Status)
	assert.Equal(t, int64(7000), job.PayoutCents)
	assert.Equal(t, "Asheville", job.City)
	assert.True(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC).Equal(job.Date))

	rec = env.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/jobs/feed.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	assert.Contains(t, rec.Body.String(), job.ID+"@turnover-cleaning")

	rec = env.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.BookingSyncResult](t, rec)
	assert.Equal(t, 0, result.JobsCreated)
	assert.Equal(t, 1, result.EventsSkipped)
}

func TestUpdateJobStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b := &models.Booking{
		CustomerEmail: "host@example.com", PropertyAddress: "1 Main St", PropertyCity: "Boone",
		Beds: 1, Baths: 1, Sqft: 600,
		ServiceType: pricing.ServiceVacationRental, Frequency: pricing.FrequencyOneTime,
		AccessMethod: models.AccessKeypad,
	}
	require.NoError(t, env.bookings.Create(ctx, b))
	job := &models.Job{BookingID: b.ID, Date: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), City: "Boone"}
	require.NoError(t, env.jobs.Create(ctx, job))

	rec := env.do(t, http.MethodPatch, "/api/jobs/"+job.ID+"/status", map[string]any{"status": "claimed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.JobStatusClaimed, decode[models.Job](t, rec).Status)

	rec = env.do(t, http.MethodPatch, "/api/jobs/"+job.ID+"/status", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/jobs/"+job.ID+"/status", map[string]any{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/jobs/missing/status", map[string]any{"status": "claimed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs_InvalidFilter(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/jobs?status=lost", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/jobs?from=tomorrow", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/jobs?from=2026-10-01&to=2026-11-01&city=asheville", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.EqualValues(t, 0, status["bookings_count"])
	assert.Equal(t, false, status["sync_enabled"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/health", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `turnover_http_requests_total{code="200",method="GET",route="/api/health"} 1`)
}

func TestWebSocket_PingPong(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg websocket.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.TypePong, msg.Type)
}
