package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `BEGIN:VCALENDAR
BEGIN:VEVENT
UID:stay-1
DTSTART:20261017
DTEND:20261020
SUMMARY:Reserved
END:VEVENT
END:VCALENDAR
`

func TestFetchCalendar_SendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	f := NewFetcher("", 5*time.Second, testLogger())
	events, err := f.FetchCalendar(context.Background(), srv.URL+"/ical/secret-token.ics")
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, gotUA)
	require.Len(t, events, 1)
	assert.Equal(t, "stay-1", events[0].UID)
}

func TestFetchCalendar_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewFetcher("test-agent", 5*time.Second, testLogger())
	events, err := f.FetchCalendar(context.Background(), srv.URL+"/ical/secret-token.ics")

	require.Error(t, err)
	assert.Empty(t, events)
	assert.Contains(t, err.Error(), "410")
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestFetchCalendar_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewFetcher("test-agent", time.Second, testLogger())
	_, err := f.FetchCalendar(context.Background(), url+"/feed.ics?token=abc")

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "token=abc")
}

func TestFetchCalendar_OversizedLineKeepsEarlierEvents(t *testing.T) {
	oversized := "BEGIN:VEVENT\nDESCRIPTION:" + strings.Repeat("x", maxLineBytes+10) + "\n"
	body := strings.TrimSuffix(sampleFeed, "END:VCALENDAR\n") + oversized

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/partial.ics":
			w.Write([]byte(body))
		default:
			w.Write([]byte(oversized))
		}
	}))
	defer srv.Close()

	f := NewFetcher("", 5*time.Second, testLogger())

	events, err := f.FetchCalendar(context.Background(), srv.URL+"/partial.ics")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "stay-1", events[0].UID)

	events, err = f.FetchCalendar(context.Background(), srv.URL+"/only-oversized.ics")
	require.Error(t, err)
	assert.Nil(t, events)
	assert.NotContains(t, err.Error(), "only-oversized")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://www.airbnb.com/...(redacted)", redactURL("https://www.airbnb.com/calendar/ical/123.ics?s=secret"))
	assert.Equal(t, "ical://...(redacted)", redactURL("not a url"))
}
