package websocket

import (
	"log/slog"

	"github.com/turnover-cleaning/backend/internal/pricing"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

// EventBroadcaster encodes domain events and sends them through the hub.
type EventBroadcaster struct {
	hub    *Hub
	logger *slog.Logger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, logger *slog.Logger) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, logger: logger}
}

// BroadcastJobCreated announces a new job.
func (b *EventBroadcaster) BroadcastJobCreated(job *models.Job) {
	b.broadcast(NewMessage(TypeJobCreated, NewJobPayload(job)))
}

// BroadcastJobStatusChanged announces a job lifecycle change.
func (b *EventBroadcaster) BroadcastJobStatusChanged(jobID string, previous, next models.JobStatus) {
	b.broadcast(NewMessage(TypeJobStatusChanged, JobStatusPayload{
		JobID:          jobID,
		PreviousStatus: string(previous),
		NewStatus:      string(next),
	}))
}

// BroadcastSyncCompleted announces the outcome of a full sync pass.
func (b *EventBroadcaster) BroadcastSyncCompleted(summary *models.SyncSummary) {
	payload := SyncPayload{
		Success:           summary.Success,
		Manual:            summary.Manual,
		BookingsProcessed: summary.BookingsProcessed,
		EventsProcessed:   summary.EventsProcessed,
		JobsCreated:       summary.JobsCreated,
		FinishedAt:        summary.FinishedAt,
	}
	for _, r := range summary.BookingResults {
		payload.FeedErrors += r.FeedErrors
	}

	b.broadcast(NewMessage(TypeICalSyncCompleted, payload))
}

// BroadcastBookingSynced announces a single-booking sync.
func (b *EventBroadcaster) BroadcastBookingSynced(result *models.BookingSyncResult) {
	b.broadcast(NewMessage(TypeBookingSyncFinished, BookingSyncPayload{
		BookingID:   result.BookingID,
		JobsCreated: result.JobsCreated,
		FeedErrors:  result.FeedErrors,
	}))
}

// NewJobPayload builds the wire form of a job event.
func NewJobPayload(job *models.Job) JobPayload {
	return JobPayload{
		JobID:       job.ID,
		BookingID:   job.BookingID,
		Date:        job.Date,
		City:        job.City,
		PriceCents:  job.PriceCents,
		PayoutCents: job.PayoutCents,
		Payout:      pricing.FormatCents(job.PayoutCents),
	}
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
