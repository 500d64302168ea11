package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a cleaning work order.
type JobStatus string

const (
	JobStatusNew        JobStatus = "new"
	JobStatusClaimed    JobStatus = "claimed"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// ParseJobStatus maps a wire value to a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	switch v := JobStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case JobStatusNew, JobStatusClaimed, JobStatusAssigned, JobStatusInProgress,
		JobStatusSubmitted, JobStatusCompleted, JobStatusCancelled:
		return v, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// UnmarshalText rejects unknown variants at decode time.
func (s *JobStatus) UnmarshalText(b []byte) error {
	v, err := ParseJobStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CanTransitionTo reports whether a contractor or admin may move a job
// from s to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusNew:
		return next == JobStatusClaimed || next == JobStatusAssigned || next == JobStatusCancelled
	case JobStatusClaimed:
		return next == JobStatusAssigned || next == JobStatusNew || next == JobStatusCancelled
	case JobStatusAssigned:
		return next == JobStatusInProgress || next == JobStatusCancelled
	case JobStatusInProgress:
		return next == JobStatusSubmitted
	case JobStatusSubmitted:
		return next == JobStatusCompleted || next == JobStatusInProgress
	case JobStatusCompleted, JobStatusCancelled:
		return false
	}
	return false
}

// Job is a single cleaning work order offered to contractors.
type Job struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"booking_id"`
	Date        time.Time `json:"date"`
	PriceCents  int64     `json:"price_cents"`
	PayoutCents int64     `json:"payout_cents"`
	City        string    `json:"city"`
	Status      JobStatus `json:"status"`
	Notes       string    `json:"notes"`

	// SourceEventID links jobs created from a calendar feed to their
	// processed-event ledger entry. At most one job exists per entry.
	SourceEventID *string `json:"source_event_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobFilter narrows job listings. Zero values are ignored.
type JobFilter struct {
	Status    JobStatus
	City      string
	BookingID string
	From      *time.Time
	To        *time.Time
	Limit     uint64
}
