package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/turnover-cleaning/backend/internal/metrics"
	"github.com/turnover-cleaning/backend/internal/storage/models"
	"github.com/turnover-cleaning/backend/internal/websocket"
)

// Routing keys of published events.
const (
	KeyJobCreated       = "job.created"
	KeyJobStatusChanged = "job.status_changed"
	KeySyncCompleted    = "ical.sync_completed"
)

// Envelope is the broker message body.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// JobCreatedData is the data of a job.created event.
type JobCreatedData struct {
	websocket.JobPayload
	Notes           string `json:"notes"`
	AccessMethod    string `json:"access_method,omitempty"`
	PropertyAddress string `json:"property_address,omitempty"`
}

// Dispatcher fans domain events out to dashboard clients and the broker.
// Publish failures are logged; they never fail the caller.
type Dispatcher struct {
	broadcaster *websocket.EventBroadcaster
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil broadcaster disables live
// events and a nil publisher disables broker events.
func NewDispatcher(broadcaster *websocket.EventBroadcaster, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if publisher == nil {
		publisher = FallbackPublisher{Logger: logger}
	}
	return &Dispatcher{
		broadcaster: broadcaster,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
	}
}

// JobCreated announces a job materialized from a calendar checkout.
func (d *Dispatcher) JobCreated(ctx context.Context, job *models.Job, booking *models.Booking) {
	if d.broadcaster != nil {
		d.broadcaster.BroadcastJobCreated(job)
	}

	data := JobCreatedData{JobPayload: websocket.NewJobPayload(job), Notes: job.Notes}
	if booking != nil {
		data.AccessMethod = string(booking.AccessMethod)
		data.PropertyAddress = booking.PropertyAddress
	}
	d.publish(ctx, KeyJobCreated, data)
}

// JobStatusChanged announces a job lifecycle transition.
func (d *Dispatcher) JobStatusChanged(ctx context.Context, jobID string, previous, next models.JobStatus) {
	if d.broadcaster != nil {
		d.broadcaster.BroadcastJobStatusChanged(jobID, previous, next)
	}
	d.publish(ctx, KeyJobStatusChanged, websocket.JobStatusPayload{
		JobID:          jobID,
		PreviousStatus: string(previous),
		NewStatus:      string(next),
	})
}

// SyncCompleted announces a finished sync pass.
func (d *Dispatcher) SyncCompleted(ctx context.Context, summary *models.SyncSummary) {
	if d.broadcaster != nil {
		d.broadcaster.BroadcastSyncCompleted(summary)
	}
	d.publish(ctx, KeySyncCompleted, summary)
}

// BookingSynced announces a single-booking sync.
func (d *Dispatcher) BookingSynced(ctx context.Context, result *models.BookingSyncResult) {
	if d.broadcaster != nil {
		d.broadcaster.BroadcastBookingSynced(result)
	}
}

// Close releases the publisher.
func (d *Dispatcher) Close() {
	d.publisher.Close()
}

func (d *Dispatcher) publish(ctx context.Context, key string, data any) {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       key,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}

	err := d.publisher.Publish(ctx, key, env)
	d.metrics.EventPublished(key, err == nil)
	if err != nil {
		d.logger.Error("failed to publish event", "type", key, "error", err)
	}
}
