package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcal/internal/model"
)

var rooms = model.Rooms{
	{ID: "kabinett", Name: "Kabinett"},
	{ID: "r3-ausstellung", Name: "R3 Ausstellung"},
	{ID: "speckdrumm", Name: "Speckdrumm"},
}

func fixture() []model.Event {
	until := model.MustDate("2025-03-31")
	base := func(id, title, room, day, from, to string) model.Event {
		return model.Event{
			ID:         id,
			Title:      title,
			RoomID:     room,
			StartDate:  model.MustDate(day),
			EndDate:    model.MustDate(day),
			StartTime:  model.MustClock(from),
			EndTime:    model.MustClock(to),
			Color:      "#FF6B6B",
			RepeatType: model.RepeatNone,
		}
	}

	timed := base("a1", "Lesung", "kabinett", "2025-03-10", "18:00", "20:00")
	timed.Description = "mit Musik"

	allDay := base("a2", "Ausstellung", "r3-ausstellung", "2025-05-05", "00:00", "23:59")
	allDay.EndDate = model.MustDate("2025-05-07")

	weekly := base("a3", "Chor", "speckdrumm", "2025-01-07", "19:00", "21:00")
	weekly.RepeatType, weekly.RepeatInterval, weekly.RepeatUntil = model.RepeatWeekly, 2, &until

	monthly := base("a4", "Stammtisch", "kabinett", "2025-01-14", "20:00", "23:00")
	monthly.RepeatType, monthly.RepeatUntil = model.RepeatMonthlyWeekday, &until
	monthly.RepeatWeekday, monthly.RepeatWeekOfMonth = 2, 2

	member := base("a5", "Probe", "kabinett", "2025-01-20", "10:00", "12:00")
	member.RepeatType, member.RepeatUntil, member.RepeatGroupID = model.RepeatWeekly, &until, "g-1"

	return []model.Event{timed, allDay, weekly, monthly, member}
}

func TestRuleFor(t *testing.T) {
	events := fixture()

	_, ok := RuleFor(events[0])
	assert.False(t, ok)

	rule, ok := RuleFor(events[2])
	require.True(t, ok)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;UNTIL=20250331T235900Z", rule)

	rule, ok = RuleFor(events[3])
	require.True(t, ok)
	assert.Equal(t, "FREQ=MONTHLY;UNTIL=20250331T235900Z;BYDAY=+2TU", rule)
}

func TestExportShape(t *testing.T) {
	out := Export(fixture(), rooms, ExportOptions{Name: "Raumbelegung", Now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})

	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "X-WR-CALNAME:Raumbelegung")
	assert.Contains(t, out, "UID:a1@roomcal")
	assert.Contains(t, out, "DTSTART:20250310T180000")
	assert.Contains(t, out, "DTEND:20250310T200000")
	assert.Contains(t, out, "LOCATION:Kabinett")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20250505")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20250508")
	assert.Contains(t, out, "RRULE:FREQ=WEEKLY;INTERVAL=2;UNTIL=20250331T235900Z")
	assert.Contains(t, out, "X-ROOMCAL-GROUP:g-1")
	assert.Equal(t, 2, strings.Count(out, "RRULE:"), "materialized rows carry no rule")
	assert.Equal(t, 5, strings.Count(out, "BEGIN:VEVENT"))
}

func TestExportParseRoundTrip(t *testing.T) {
	src := fixture()
	out := Export(src, rooms, ExportOptions{})

	got, err := Parse(strings.NewReader(out), rooms)
	require.NoError(t, err)
	require.Len(t, got, len(src))

	for i, want := range src {
		ev := got[i]
		assert.Equal(t, want.ID, ev.ID)
		assert.Equal(t, want.Title, ev.Title)
		assert.Equal(t, want.RoomID, ev.RoomID)
		assert.Equal(t, want.StartDate, ev.StartDate, want.ID)
		assert.Equal(t, want.EndDate, ev.EndDate, want.ID)
		assert.Equal(t, want.StartTime, ev.StartTime, want.ID)
		assert.Equal(t, want.EndTime, ev.EndTime, want.ID)
		assert.Equal(t, want.Color, ev.Color)
	}
	assert.Equal(t, "mit Musik", got[0].Description)

	assert.Equal(t, model.RepeatWeekly, got[2].RepeatType)
	assert.Equal(t, 2, got[2].RepeatInterval)
	require.NotNil(t, got[2].RepeatUntil)
	assert.Equal(t, "2025-03-31", got[2].RepeatUntil.String())

	assert.Equal(t, model.RepeatMonthlyWeekday, got[3].RepeatType)
	assert.Equal(t, 2, got[3].RepeatWeekday)
	assert.Equal(t, 2, got[3].RepeatWeekOfMonth)

	assert.Equal(t, "g-1", got[4].RepeatGroupID)
	assert.Equal(t, model.RepeatNone, got[4].RepeatType, "materialized rows come back as plain rows")
}

func TestParseMatchesLocationAndSkipsUnknownRooms(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//test//EN",
		"BEGIN:VEVENT",
		"UID:x1@example.org",
		"DTSTAMP:20250101T000000Z",
		"SUMMARY:Konzert",
		"LOCATION:speckdrumm",
		"DTSTART:20250412T200000Z",
		"DTEND:20250412T223000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:x2@example.org",
		"DTSTAMP:20250101T000000Z",
		"SUMMARY:Anderswo",
		"LOCATION:Stadthalle",
		"DTSTART:20250412T200000Z",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, err := Parse(strings.NewReader(body), rooms)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "speckdrumm", got[0].RoomID)
	assert.Equal(t, "20:00", got[0].StartTime.String())
	assert.Equal(t, "22:30", got[0].EndTime.String())
	assert.Equal(t, "x1@example.org", got[0].ID)
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher()
	body, err := f.Fetch(context.Background(), srv.URL+"/feed.ics")
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.ics")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "local.ics")
	require.NoError(t, os.WriteFile(path, []byte("BEGIN:VCALENDAR"), 0o600))
	body, err = f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCALENDAR", string(body))

	_, err = f.Fetch(context.Background(), "")
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.org/...(redacted)", redactURL("https://cal.example.org/private/abc.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds", "roomcal.ics")
	require.NoError(t, WriteFile(path, "first"))
	require.NoError(t, WriteFile(path, Export(fixture(), rooms, ExportOptions{})))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "BEGIN:VCALENDAR"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
