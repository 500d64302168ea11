package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/turnover-cleaning/backend/internal/storage/models"
)

// DefaultUserAgent identifies the poller to calendar providers.
const DefaultUserAgent = "TurnoverCleaning-ICalSync/1.0"

const maxFeedBytes = 10 << 20

// Fetcher downloads and parses calendar feeds.
type Fetcher struct {
	client    *http.Client
	parser    *Parser
	userAgent string
	logger    *slog.Logger
}

// NewFetcher creates a feed fetcher. A zero timeout leaves requests bounded
// only by the caller's context.
func NewFetcher(userAgent string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		parser:    NewParser(logger),
		userAgent: userAgent,
		logger:    logger,
	}
}

// FetchCalendar downloads the feed at rawURL and returns its events. Any
// failure is returned to the caller, which treats it as a skipped feed,
// except a read error after some events were parsed: those are returned.
func (f *Fetcher) FetchCalendar(ctx context.Context, rawURL string) ([]models.CalendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", redactURL(rawURL), stripURL(err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar %s: %w", redactURL(rawURL), stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("calendar %s returned status %d", redactURL(rawURL), resp.StatusCode)
	}

	events, err := f.parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		if len(events) == 0 {
			return nil, fmt.Errorf("calendar %s: %w", redactURL(rawURL), err)
		}
		// Keep the events read before the failure.
		f.logger.Warn("calendar feed truncated",
			"url", redactURL(rawURL),
			"events", len(events),
			"error", err,
		)
	}

	f.logger.Debug("calendar fetched", "url", redactURL(rawURL), "events", len(events))
	return events, nil
}

// redactURL keeps only the scheme and host; feed paths and query strings
// carry private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ical://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}

// stripURL drops the url.Error wrapper, whose message repeats the full URL.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
