package calendar

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/turnover-cleaning/backend/internal/pricing"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

const feedProductID = "-//Turnover Cleaning//Job Feed//EN"

// WriteJobsFeed writes jobs as an all-day iCalendar feed that contractors
// can subscribe to.
func WriteJobsFeed(w io.Writer, jobs []models.Job, now time.Time) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(feedProductID)
	cal.SetXWRCalName("Turnover cleaning jobs")

	for _, job := range jobs {
		day := startOfDay(job.Date)

		event := cal.AddEvent(job.ID + "@turnover-cleaning")
		event.SetDtStampTime(now.UTC())
		event.SetCreatedTime(job.CreatedAt.UTC())
		event.SetModifiedAt(job.UpdatedAt.UTC())
		event.SetAllDayStartAt(day)
		event.SetAllDayEndAt(day.AddDate(0, 0, 1))
		event.SetSummary(jobSummary(job))
		if job.City != "" {
			event.SetLocation(job.City)
		}
		if job.Notes != "" {
			event.SetDescription(job.Notes)
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("writing job feed: %w", err)
	}
	return nil
}

func jobSummary(job models.Job) string {
	s := fmt.Sprintf("Turnover clean (%s payout)", pricing.FormatCents(job.PayoutCents))
	if job.City != "" {
		s = job.City + ": " + s
	}
	if job.Status != models.JobStatusNew {
		s += " [" + string(job.Status) + "]"
	}
	return s
}
