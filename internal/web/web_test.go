package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcal/internal/booking"
	"roomcal/internal/capture"
	"roomcal/internal/config"
	"roomcal/internal/holiday"
	"roomcal/internal/model"
	"roomcal/internal/store"
)

const lesung = `{"title":"Lesung","roomId":"kabinett","startDate":"2025-05-06","endDate":"2025-05-06","startTime":"18:00","endTime":"20:00","color":"#FF6B6B"}`

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	svc := booking.New(store.NewMemory(), booking.Options{
		Rooms:   cfg.Rooms,
		Palette: cfg.Palette,
	})
	holidays, err := holiday.Parse([]byte("holidays:\n  - date: '2025-05-01'\n    name: Tag der Arbeit\n"))
	require.NoError(t, err)

	s := NewServer(cfg, svc, holidays, false)
	s.now = func() time.Time { return time.Date(2025, 5, 14, 12, 0, 0, 0, time.UTC) }
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndBasicAuth(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "büro", Password: "geheim"}
	})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/rooms", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.SetBasicAuth("büro", "geheim")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestBasicAuthDisabledWithEmptyPassword(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "büro"}
	})
	rec := do(t, s.Handler(), http.MethodGet, "/api/rooms", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRooms(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	rooms := decode[model.Rooms](t, do(t, h, http.MethodGet, "/api/rooms", ""))
	require.Len(t, rooms, 6)
	assert.Equal(t, "r3-ausstellung", rooms[0].ID)
}

func TestEventLifecycle(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/events", lesung)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[booking.Result](t, rec)
	require.Len(t, created.Events, 1)
	assert.Empty(t, created.Collisions)
	id := created.Events[0].ID
	require.NotEmpty(t, id)

	// Same room, overlapping time: saved anyway, collision reported.
	overlap := strings.Replace(lesung, `"18:00"`, `"19:00"`, 1)
	overlap = strings.Replace(overlap, `"20:00"`, `"21:00"`, 1)
	rec = do(t, h, http.MethodPost, "/api/events", overlap)
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[booking.Result](t, rec)
	require.Len(t, second.Collisions, 1)
	assert.Equal(t, id, second.Collisions[0].ID)

	rec = do(t, h, http.MethodGet, "/api/events/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lesung", decode[model.Event](t, rec).Title)

	list := decode[[]model.Event](t, do(t, h, http.MethodGet, "/api/events?startDate=2025-05-01&endDate=2025-05-31&roomId=kabinett", ""))
	assert.Len(t, list, 2)
	list = decode[[]model.Event](t, do(t, h, http.MethodGet, "/api/events?startDate=2025-06-01", ""))
	assert.Empty(t, list)
	list = decode[[]model.Event](t, do(t, h, http.MethodGet, "/api/events?roomId=speckdrumm", ""))
	assert.Empty(t, list)

	renamed := strings.Replace(lesung, `"Lesung"`, `"Lesung mit Musik"`, 1)
	rec = do(t, h, http.MethodPut, "/api/events/"+id+"?scope=single", renamed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[booking.Result](t, rec)
	require.Len(t, updated.Events, 1)
	assert.Equal(t, id, updated.Events[0].ID)
	assert.Equal(t, "Lesung mit Musik", updated.Events[0].Title)

	rec = do(t, h, http.MethodDelete, "/api/events/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{id}, decode[deleteResponse](t, rec).Deleted)

	rec = do(t, h, http.MethodGet, "/api/events/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSeriesDeleteAll(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	series := strings.Replace(lesung, `"color"`, `"repeatType":"weekly","repeatUntil":"2025-05-27","color"`, 1)
	rec := do(t, h, http.MethodPost, "/api/events", series)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[booking.Result](t, rec)
	require.Len(t, created.Events, 4)
	group := created.Events[0].RepeatGroupID
	require.NotEmpty(t, group)
	for _, ev := range created.Events {
		assert.Equal(t, group, ev.RepeatGroupID)
	}

	rec = do(t, h, http.MethodDelete, "/api/events/"+created.Events[2].ID+"?scope=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[deleteResponse](t, rec).Deleted, 4)

	list := decode[[]model.Event](t, do(t, h, http.MethodGet, "/api/events", ""))
	assert.Empty(t, list)
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/events", `{"title":`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/events", `{"title":"x","startDate":"2025-13-01"}`, http.StatusBadRequest},
		{"unknown room", http.MethodPost, "/api/events", strings.Replace(lesung, "kabinett", "keller", 1), http.StatusBadRequest},
		{"inverted times", http.MethodPost, "/api/events", strings.Replace(lesung, `"20:00"`, `"17:00"`, 1), http.StatusBadRequest},
		{"unknown scope", http.MethodPut, "/api/events/x?scope=future", lesung, http.StatusBadRequest},
		{"unknown id", http.MethodPut, "/api/events/missing", lesung, http.StatusNotFound},
		{"delete unknown id", http.MethodDelete, "/api/events/missing?scope=all", "", http.StatusNotFound},
		{"bad list filter", http.MethodGet, "/api/events?startDate=soon", "", http.StatusBadRequest},
		{"bad month", http.MethodGet, "/api/calendar?month=May", "", http.StatusBadRequest},
		{"unknown calendar room", http.MethodGet, "/api/calendar?month=2025-05&roomId=keller", "", http.StatusBadRequest},
		{"inverted holiday range", http.MethodGet, "/api/holidays?from=2025-05-31&to=2025-05-01", "", http.StatusBadRequest},
		{"candidate without dates", http.MethodPost, "/api/collisions", `{"candidate":{"roomId":"kabinett"}}`, http.StatusBadRequest},
		{"unknown api path", http.MethodGet, "/api/nothing", "", http.StatusNotFound},
		{"wrong method", http.MethodPost, "/api/rooms", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCollisionPreCheck(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	rec := do(t, h, http.MethodPost, "/api/events", lesung)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[booking.Result](t, rec).Events[0].ID

	candidate := `{"roomId":"kabinett","startDate":"2025-05-06","endDate":"2025-05-06","startTime":"19:30","endTime":"22:00"}`
	resp := decode[collisionResponse](t, do(t, h, http.MethodPost, "/api/collisions", `{"candidate":`+candidate+`}`))
	require.Len(t, resp.Collisions, 1)
	assert.Equal(t, id, resp.Collisions[0].ID)

	resp = decode[collisionResponse](t, do(t, h, http.MethodPost, "/api/collisions", `{"candidate":`+candidate+`,"excludeId":"`+id+`"}`))
	assert.NotNil(t, resp.Collisions)
	assert.Empty(t, resp.Collisions)

	touching := `{"roomId":"kabinett","startDate":"2025-05-06","endDate":"2025-05-06","startTime":"20:00","endTime":"22:00"}`
	resp = decode[collisionResponse](t, do(t, h, http.MethodPost, "/api/collisions", `{"candidate":`+touching+`}`))
	assert.Empty(t, resp.Collisions)
}

func TestCalendarAndHolidays(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/events", lesung).Code)

	cal := decode[calendarResponse](t, do(t, h, http.MethodGet, "/api/calendar?month=2025-05&roomId=kabinett", ""))
	assert.Equal(t, "2025-05", cal.Month)
	require.Len(t, cal.Rooms, 1)
	require.Len(t, cal.Days, 31)

	first := cal.Days[0]
	require.Len(t, first.Holidays, 1)
	assert.Equal(t, "Tag der Arbeit", first.Holidays[0].Name)

	may6 := cal.Days[5]
	assert.Equal(t, "2025-05-06", may6.Date.String())
	require.Len(t, may6.Cells, 1)
	require.Len(t, may6.Cells[0].Events, 1)
	assert.Equal(t, "Lesung", may6.Cells[0].Events[0].Title)
	assert.NotNil(t, cal.Days[6].Holidays)

	// No month: the current month of the server clock.
	cal = decode[calendarResponse](t, do(t, h, http.MethodGet, "/api/calendar", ""))
	assert.Equal(t, "2025-05", cal.Month)
	assert.Len(t, cal.Rooms, 6)

	hs := decode[[]holiday.Holiday](t, do(t, h, http.MethodGet, "/api/holidays", ""))
	require.Len(t, hs, 1)
	assert.Equal(t, holiday.KindHoliday, hs[0].Kind)

	hs = decode[[]holiday.Holiday](t, do(t, h, http.MethodGet, "/api/holidays?from=2025-06-01&to=2025-06-30", ""))
	assert.Empty(t, hs)
}

func TestPrintSheet(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/events", lesung).Code)

	rec := do(t, h, http.MethodGet, "/print?month=2025-05", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Raumbelegung Mai 2025")
	assert.Contains(t, body, "Lesung")
	assert.Contains(t, body, "Tag der Arbeit")
}

func TestPrintPDF(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/print.pdf?month=2025-05", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "disabled by default")

	s = newTestServer(t, func(c *config.Config) { c.Print.Enabled = true })
	var got capture.Options
	s.printPDF = func(_ context.Context, opts capture.Options) ([]byte, error) {
		got = opts
		return []byte("%PDF-1.7"), nil
	}
	rec = do(t, s.Handler(), http.MethodGet, "/print.pdf?month=2025-05", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "raumbelegung-2025-05.pdf")
	assert.Equal(t, "%PDF-1.7", rec.Body.String())
	assert.True(t, strings.HasPrefix(got.URL, "data:text/html;charset=utf-8;base64,"))
	assert.Equal(t, 30*time.Second, got.Timeout)
	assert.True(t, got.Landscape)

	s.printPDF = func(context.Context, capture.Options) ([]byte, error) {
		return nil, errors.New("chromium not found")
	}
	rec = do(t, s.Handler(), http.MethodGet, "/print.pdf?month=2025-05", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestICSFeedCacheInvalidatedOnWrite(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := do(t, h, http.MethodGet, "/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
	assert.NotContains(t, rec.Body.String(), "BEGIN:VEVENT")

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/events", lesung).Code)

	rec = do(t, h, http.MethodGet, "/calendar.ics", "")
	assert.Contains(t, rec.Body.String(), "SUMMARY:Lesung")
	assert.Contains(t, rec.Body.String(), "LOCATION:Kabinett")
}

func TestStaticLandingPage(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/calendar.ics"`)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "ab"))
}

func TestRecentEvents(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	series := strings.Replace(lesung, `"color"`, `"repeatType":"weekly","repeatUntil":"2025-05-27","color"`, 1)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/events", series).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/events", strings.Replace(lesung, "kabinett", "speckdrumm", 1)).Code)

	rec := do(t, h, http.MethodGet, "/api/events/recent", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	groups := decode[[]booking.RecentGroup](t, rec)
	require.Len(t, groups, 2, "the series is folded into one entry")
	rows := []int{groups[0].Rows, groups[1].Rows}
	assert.ElementsMatch(t, []int{4, 1}, rows)

	groups = decode[[]booking.RecentGroup](t, do(t, h, http.MethodGet, "/api/events/recent?limit=1", ""))
	assert.Len(t, groups, 1)
}

// listHookStore runs onList after every List, standing in for a write that
// lands while a feed is being rendered.
type listHookStore struct {
	store.Store
	onList func()
}

func (s *listHookStore) List(ctx context.Context) ([]model.Event, error) {
	events, err := s.Store.List(ctx)
	if s.onList != nil {
		s.onList()
	}
	return events, err
}

func TestICSFeedNotCachedAcrossConcurrentWrite(t *testing.T) {
	cfg := config.DefaultConfig()
	st := &listHookStore{Store: store.NewMemory()}
	svc := booking.New(st, booking.Options{Rooms: cfg.Rooms, Palette: cfg.Palette})
	s := NewServer(cfg, svc, nil, false)

	st.onList = s.invalidateICS
	_, err := s.calendarFeed(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.icsCache, "a feed built before a write must not be cached")

	st.onList = nil
	_, err = s.calendarFeed(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, s.icsCache)
}

func TestHealthRejectsOtherMethods(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/health", "").Code)
}
