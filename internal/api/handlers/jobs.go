package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/turnover-cleaning/backend/internal/api/middleware"
	"github.com/turnover-cleaning/backend/internal/calendar"
	"github.com/turnover-cleaning/backend/internal/events"
	"github.com/turnover-cleaning/backend/internal/storage"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

type updateJobStatusRequest struct {
	Status models.JobStatus `json:"status"`
}

// ListJobs returns jobs filtered by status, city, booking_id and a
// from/to date range (YYYY-MM-DD or RFC 3339; to is exclusive).
func ListJobs(jobs *storage.JobRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseJobFilter(r)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		list, err := jobs.List(r.Context(), filter)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query jobs")
			return
		}
		if list == nil {
			list = []models.Job{}
		}

		writeJSON(w, http.StatusOK, list)
	}
}

// GetJob returns a single job by ID.
func GetJob(jobs *storage.JobRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := jobs.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query job")
			return
		}
		if job == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Job not found")
			return
		}

		writeJSON(w, http.StatusOK, job)
	}
}

// UpdateJobStatus moves a job through its lifecycle and announces the change.
func UpdateJobStatus(jobs *storage.JobRepository, dispatcher *events.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateJobStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body", err.Error())
			return
		}
		if req.Status == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "status is required")
			return
		}

		ctx := r.Context()
		job, previous, err := jobs.UpdateStatus(ctx, mux.Vars(r)["id"], req.Status)
		if errors.Is(err, storage.ErrInvalidTransition) {
			middleware.WriteErrorWithDetails(w, http.StatusConflict, middleware.ErrConflict, "Invalid status transition", err.Error())
			return
		}
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update job")
			return
		}
		if job == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Job not found")
			return
		}

		if dispatcher != nil {
			dispatcher.JobStatusChanged(ctx, job.ID, previous, job.Status)
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// JobsFeed serves upcoming, non-cancelled jobs as an iCalendar feed for
// contractors' calendar apps.
func JobsFeed(jobs *storage.JobRepository, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := now().UTC()
		today := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

		list, err := jobs.ListUpcoming(r.Context(), today)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query jobs")
			return
		}

		var buf bytes.Buffer
		if err := calendar.WriteJobsFeed(&buf, list, t); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to render feed")
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `inline; filename="jobs.ics"`)
		w.Write(buf.Bytes())
	}
}

func parseJobFilter(r *http.Request) (models.JobFilter, error) {
	q := r.URL.Query()
	filter := models.JobFilter{
		City:      q.Get("city"),
		BookingID: q.Get("booking_id"),
	}

	if s := q.Get("status"); s != "" {
		status, err := models.ParseJobStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		s := q.Get(p.name)
		if s == "" {
			continue
		}
		t, err := parseDateParam(s)
		if err != nil {
			return filter, fmt.Errorf("invalid %s date %q", p.name, s)
		}
		*p.dst = &t
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return filter, fmt.Errorf("invalid limit %q", s)
		}
		filter.Limit = n
	}

	return filter, nil
}

func parseDateParam(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
