package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeJobCreated          MessageType = "job.created"
	TypeJobStatusChanged    MessageType = "job.status_changed"
	TypeICalSyncCompleted   MessageType = "ical.sync_completed"
	TypeBookingSyncFinished MessageType = "booking.sync_completed"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// JobPayload is the payload for job.created events.
type JobPayload struct {
	JobID       string    `json:"job_id"`
	BookingID   string    `json:"booking_id"`
	Date        time.Time `json:"date"`
	City        string    `json:"city"`
	PriceCents  int64     `json:"price_cents"`
	PayoutCents int64     `json:"payout_cents"`
	Payout      string    `json:"payout"`
}

// JobStatusPayload is the payload for job.status_changed events.
type JobStatusPayload struct {
	JobID          string `json:"job_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
}

// SyncPayload is the payload for ical.sync_completed events.
type SyncPayload struct {
	Success           bool      `json:"success"`
	Manual            bool      `json:"manual"`
	BookingsProcessed int       `json:"bookings_processed"`
	EventsProcessed   int       `json:"events_processed"`
	JobsCreated       int       `json:"jobs_created"`
	FeedErrors        int       `json:"feed_errors"`
	FinishedAt        time.Time `json:"finished_at"`
}

// BookingSyncPayload is the payload for booking.sync_completed events.
type BookingSyncPayload struct {
	BookingID   string `json:"booking_id"`
	JobsCreated int    `json:"jobs_created"`
	FeedErrors  int    `json:"feed_errors"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
