package handlers

import (
	"net/http"
	"time"

	"github.com/turnover-cleaning/backend/internal/storage"
	"github.com/turnover-cleaning/backend/internal/storage/models"
	"github.com/turnover-cleaning/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	BookingsCount    int                      `json:"bookings_count"`
	JobsByStatus     map[models.JobStatus]int `json:"jobs_by_status"`
	WebSocketClients int                      `json:"websocket_clients"`
	SyncEnabled      bool                     `json:"sync_enabled"`
	NextSyncAt       *time.Time               `json:"next_sync_at,omitempty"`
}

// NextRunner reports when the next scheduled sync pass fires.
type NextRunner interface {
	NextRun() *time.Time
}

// Status returns a handler that provides system status information.
// scheduler may be nil when scheduled sync is disabled.
func Status(bookings *storage.BookingRepository, jobs *storage.JobRepository, hub *websocket.Hub, scheduler NextRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{
			JobsByStatus:     map[models.JobStatus]int{},
			WebSocketClients: hub.ClientCount(),
		}

		if n, err := bookings.Count(ctx); err == nil {
			resp.BookingsCount = n
		}
		if counts, err := jobs.CountByStatus(ctx); err == nil {
			resp.JobsByStatus = counts
		}
		if scheduler != nil {
			resp.SyncEnabled = true
			resp.NextSyncAt = scheduler.NextRun()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
