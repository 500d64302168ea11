package models

import (
	"time"
)

// CalendarEvent represents a parsed event from an iCal feed. UIDs are only
// unique within their feed.
type CalendarEvent struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// EventKey identifies a checkout for deduplication. The same UID with a
// different end is a different checkout.
type EventKey struct {
	BookingID string
	EventUID  string
	EventEnd  time.Time
}

// ProcessedEvent is a dedup ledger entry for a checkout seen in a feed.
type ProcessedEvent struct {
	ID         string    `json:"id"`
	BookingID  string    `json:"booking_id"`
	EventUID   string    `json:"event_uid"`
	EventEnd   time.Time `json:"event_end"`
	JobCreated bool      `json:"job_created"`
	JobID      *string   `json:"job_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Key returns the entry's dedup key.
func (p *ProcessedEvent) Key() EventKey {
	return EventKey{BookingID: p.BookingID, EventUID: p.EventUID, EventEnd: p.EventEnd}
}

// BookingSyncResult reports one booking's share of a sync pass.
type BookingSyncResult struct {
	BookingID       string   `json:"booking_id"`
	FeedsFetched    int      `json:"feeds_fetched"`
	FeedErrors      int      `json:"feed_errors"`
	EventsFound     int      `json:"events_found"`
	EventsProcessed int      `json:"events_processed"`
	EventsSkipped   int      `json:"events_skipped"`
	JobsCreated     int      `json:"jobs_created"`
	JobIDs          []string `json:"job_ids,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// SyncSummary is the response of a sync pass.
type SyncSummary struct {
	Success           bool                `json:"success"`
	Manual            bool                `json:"manual"`
	BookingsProcessed int                 `json:"bookingsProcessed"`
	EventsProcessed   int                 `json:"eventsProcessed"`
	JobsCreated       int                 `json:"jobsCreated"`
	BookingResults    []BookingSyncResult `json:"bookingResults"`
	StartedAt         time.Time           `json:"startedAt"`
	FinishedAt        time.Time           `json:"finishedAt"`
}
