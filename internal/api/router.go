// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/turnover-cleaning/backend/internal/api/handlers"
	"github.com/turnover-cleaning/backend/internal/api/middleware"
	"github.com/turnover-cleaning/backend/internal/calendar"
	"github.com/turnover-cleaning/backend/internal/events"
	"github.com/turnover-cleaning/backend/internal/metrics"
	"github.com/turnover-cleaning/backend/internal/pricing"
	"github.com/turnover-cleaning/backend/internal/storage"
	"github.com/turnover-cleaning/backend/internal/websocket"
)

// Services holds the dependencies the handlers are built from. SyncService,
// Scheduler, Dispatcher and Metrics are optional.
type Services struct {
	DB          *storage.DB
	Bookings    *storage.BookingRepository
	Jobs        *storage.JobRepository
	Pricing     *pricing.Engine
	Hub         *websocket.Hub
	SyncService *calendar.SyncService
	Scheduler   *calendar.Scheduler
	Dispatcher  *events.Dispatcher
	Metrics     *metrics.Metrics
	MetricsPath string
	StaticDir   string
	Logger      *slog.Logger

	// Now is the clock used for the job feed; defaults to time.Now.
	Now func() time.Time
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.MetricsPath == "" {
		s.MetricsPath = "/metrics"
	}

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging(s.Logger))
	r.Use(middleware.ErrorRecovery(s.Logger))
	if s.Metrics != nil {
		r.Use(middleware.Metrics(s.Metrics))
		r.Handle(s.MetricsPath, s.Metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	var scheduler handlers.NextRunner
	if s.Scheduler != nil {
		scheduler = s.Scheduler
	}
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.Bookings, s.Jobs, s.Hub, scheduler)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, s.Logger)).Methods("GET")

	// Pricing endpoints
	api.HandleFunc("/pricing", handlers.PricingGrid(s.Pricing)).Methods("GET")
	api.HandleFunc("/quote", handlers.Quote(s.Pricing)).Methods("POST")

	// Booking endpoints
	api.HandleFunc("/bookings", handlers.ListBookings(s.Bookings)).Methods("GET")
	api.HandleFunc("/bookings", handlers.CreateBooking(s.Bookings, s.Pricing)).Methods("POST")
	api.HandleFunc("/bookings/{id}", handlers.GetBooking(s.Bookings)).Methods("GET")
	api.HandleFunc("/bookings/{id}/ical-urls", handlers.UpdateBookingICalURLs(s.Bookings)).Methods("PUT")
	api.HandleFunc("/bookings/{id}/status", handlers.UpdateBookingStatus(s.Bookings)).Methods("PATCH")
	api.HandleFunc("/bookings/{id}/sync", handlers.SyncBooking(s.SyncService, s.Dispatcher)).Methods("POST")

	// Job endpoints; the feed is registered before {id} so it is not shadowed.
	api.HandleFunc("/jobs", handlers.ListJobs(s.Jobs)).Methods("GET")
	api.HandleFunc("/jobs/feed.ics", handlers.JobsFeed(s.Jobs, s.Now)).Methods("GET")
	api.HandleFunc("/jobs/{id}", handlers.GetJob(s.Jobs)).Methods("GET")
	api.HandleFunc("/jobs/{id}/status", handlers.UpdateJobStatus(s.Jobs, s.Dispatcher)).Methods("PATCH")

	// Calendar sync trigger
	api.HandleFunc("/ical/sync", handlers.TriggerSync(s.SyncService)).Methods("POST")

	// Serve static dashboard files
	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	return r
}
