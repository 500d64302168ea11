// Package calendar turns guest-booking calendar feeds into cleaning jobs.
package calendar

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/turnover-cleaning/backend/internal/storage/models"
)

const maxLineBytes = 1 << 20

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";")

// Parser parses the VEVENT blocks of an iCal feed. Only UID, SUMMARY,
// DESCRIPTION, DTSTART and DTEND are read.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new iCal parser.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

type eventBlock struct {
	fields map[string]string
	depth  int // nested components such as VALARM
}

// Parse reads iCal data and returns the well-formed events in feed order.
// A block missing UID, DTSTART or DTEND, or with an unreadable date, is
// dropped without failing the rest of the feed.
func (p *Parser) Parse(r io.Reader) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	var block *eventBlock
	var field string
	var value strings.Builder

	flush := func() {
		if block != nil && field != "" {
			block.fields[field] = value.String()
		}
		field = ""
		value.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), "\r")
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		// Folded continuation of the previous property.
		if raw[0] == ' ' || raw[0] == '\t' {
			if !isPropertyLine(line) {
				if field != "" {
					value.WriteString(raw[1:])
				}
				continue
			}
		}

		flush()

		name, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name, _, _ = strings.Cut(name, ";")
		name = strings.ToUpper(strings.TrimSpace(name))
		val = strings.TrimSpace(val)

		switch name {
		case "BEGIN":
			switch {
			case strings.EqualFold(val, "VEVENT"):
				if block != nil {
					p.logger.Debug("dropping unterminated calendar event", "uid", block.fields["UID"])
				}
				block = &eventBlock{fields: make(map[string]string)}
			case block != nil:
				block.depth++
			}
		case "END":
			switch {
			case block == nil:
			case block.depth > 0:
				block.depth--
			case strings.EqualFold(val, "VEVENT"):
				if event, err := p.buildEvent(block.fields); err != nil {
					p.logger.Debug("dropping calendar event", "uid", block.fields["UID"], "error", err)
				} else {
					events = append(events, event)
				}
				block = nil
			}
		case "UID", "SUMMARY", "DESCRIPTION", "DTSTART", "DTEND":
			if block != nil && block.depth == 0 {
				field = name
				value.WriteString(val)
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("reading calendar: %w", err)
	}

	return events, nil
}

func (p *Parser) buildEvent(fields map[string]string) (models.CalendarEvent, error) {
	uid := strings.TrimSpace(fields["UID"])
	if uid == "" {
		return models.CalendarEvent{}, fmt.Errorf("missing UID")
	}

	rawStart, rawEnd := strings.TrimSpace(fields["DTSTART"]), strings.TrimSpace(fields["DTEND"])
	if rawStart == "" || rawEnd == "" {
		return models.CalendarEvent{}, fmt.Errorf("missing DTSTART or DTEND")
	}

	start, err := ParseDateTime(rawStart)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	end, err := ParseDateTime(rawEnd)
	if err != nil {
		return models.CalendarEvent{}, err
	}

	return models.CalendarEvent{
		UID:         uid,
		Summary:     unescapeText(fields["SUMMARY"]),
		Description: unescapeText(fields["DESCRIPTION"]),
		Start:       start,
		End:         end,
	}, nil
}

// ParseDateTime parses an iCal DATE (YYYYMMDD) or DATE-TIME
// (YYYYMMDDTHHMMSS with optional Z) value. Both are read as UTC; TZID
// parameters are not applied, so local wall-clock times are taken literally.
func ParseDateTime(value string) (time.Time, error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), "Z")

	layout := "20060102"
	if strings.Contains(value, "T") {
		layout = "20060102T150405"
	}

	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", value, err)
	}
	return t, nil
}

// FilterCheckouts returns the events whose end falls on today or later,
// compared by UTC calendar day. An event that ended earlier today is kept.
func FilterCheckouts(events []models.CalendarEvent, now time.Time) []models.CalendarEvent {
	today := startOfDay(now)

	var checkouts []models.CalendarEvent
	for _, e := range events {
		if !startOfDay(e.End).Before(today) {
			checkouts = append(checkouts, e)
		}
	}
	return checkouts
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// isPropertyLine reports whether an indented line starts a new property
// rather than continuing a folded one. Only the names the parser reads
// count, so folded text such as " NOTE: bring towels" stays a continuation.
func isPropertyLine(line string) bool {
	i := strings.IndexAny(line, ":;")
	if i <= 0 {
		return false
	}
	switch line[:i] {
	case "BEGIN", "END", "UID", "SUMMARY", "DESCRIPTION", "DTSTART", "DTEND":
		return true
	}
	return false
}

func unescapeText(s string) string {
	return textUnescaper.Replace(strings.TrimSpace(s))
}
