// Package web exposes the booking service over HTTP: the JSON API, the
// month print sheet and the iCalendar feed.
package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"roomcal/internal/booking"
	"roomcal/internal/capture"
	"roomcal/internal/config"
	"roomcal/internal/holiday"
	"roomcal/internal/ics"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/printview"
	"roomcal/internal/recur"
	"roomcal/internal/store"
)

const (
	calendarName = "Raumbelegung"
	icsCacheTTL  = 30 * time.Second
	maxBodyBytes = 1 << 20
)

// Server serves the booking API.
type Server struct {
	cfg      *config.Config
	bookings *booking.Service
	holidays *holiday.Table
	debug    bool
	mux      *http.ServeMux

	// now is the clock used for the default month.
	now func() time.Time
	// printPDF turns a page URL into a PDF.
	printPDF func(context.Context, capture.Options) ([]byte, error)

	// In-memory cache for /calendar.ics, dropped on every write. icsGen
	// counts writes so a feed built before a write is never cached.
	icsMu    sync.RWMutex
	icsCache *icsCache
	icsGen   uint64
}

type icsCache struct {
	body      string
	updatedAt time.Time
}

// embeddedStatic holds the landing page served for non-API paths.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server. A nil holiday table means none.
func NewServer(cfg *config.Config, bookings *booking.Service, holidays *holiday.Table, debug bool) *Server {
	if holidays == nil {
		holidays = holiday.Empty()
	}
	s := &Server{
		cfg:      cfg,
		bookings: bookings,
		holidays: holidays,
		debug:    debug,
		mux:      http.NewServeMux(),
		now:      time.Now,
		printPDF: capture.PrintPDF,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="roomcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/rooms", s.handleRooms)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/recent", s.handleRecentEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("POST /api/collisions", s.handleCollisions)
	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/holidays", s.handleHolidays)

	s.mux.HandleFunc("GET /print", s.handlePrint)
	s.mux.HandleFunc("GET /print.pdf", s.handlePrintPDF)
	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)

	s.mux.Handle("GET /", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded landing page. /api/* never falls
// through to it.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bookings.Rooms())
}

// handleListEvents returns events occurring within a date range.
//
// GET /api/events?startDate=2025-05-01&endDate=2025-05-31&roomId=kabinett
//   - startDate, endDate: inclusive bounds; a missing side is open
//   - roomId:             optional room filter
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f booking.Filter
	var err error
	if f.From, err = parseDateParam(q.Get("startDate")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid startDate")
		return
	}
	if f.To, err = parseDateParam(q.Get("endDate")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid endDate")
		return
	}
	f.RoomID = q.Get("roomId")

	events, err := s.bookings.List(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var draft model.Event
	if !decodeJSON(w, r, &draft) {
		return
	}
	res, err := s.bookings.Create(r.Context(), draft)
	if err != nil {
		s.writeServiceError(w, "create event", err)
		return
	}
	s.invalidateICS()
	writeJSON(w, http.StatusCreated, res)
}

// handleRecentEvents lists recently changed bookings, one entry per series.
//
// GET /api/events/recent?limit=12
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), booking.RecentLimit)
	groups, err := s.bookings.Recent(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, "recent events", err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, "get event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleUpdateEvent edits one event or its whole series.
//
// PUT /api/events/{id}?scope=single|all
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	scope, err := booking.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var draft model.Event
	if !decodeJSON(w, r, &draft) {
		return
	}
	res, err := s.bookings.Update(r.Context(), r.PathValue("id"), draft, scope)
	if err != nil {
		s.writeServiceError(w, "update event", err)
		return
	}
	s.invalidateICS()
	writeJSON(w, http.StatusOK, res)
}

type deleteResponse struct {
	Deleted []string `json:"deleted"`
}

// handleDeleteEvent removes one event or its whole series.
//
// DELETE /api/events/{id}?scope=single|all
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	scope, err := booking.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids, err := s.bookings.Delete(r.Context(), r.PathValue("id"), scope)
	if err != nil {
		s.writeServiceError(w, "delete event", err)
		return
	}
	s.invalidateICS()
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: ids})
}

type collisionRequest struct {
	Candidate recur.Candidate `json:"candidate"`
	ExcludeID string          `json:"excludeId"`
}

type collisionResponse struct {
	Collisions []model.Event `json:"collisions"`
}

func (s *Server) handleCollisions(w http.ResponseWriter, r *http.Request) {
	var req collisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hits, err := s.bookings.CheckCollisions(r.Context(), req.Candidate, req.ExcludeID)
	if err != nil {
		s.writeServiceError(w, "check collisions", err)
		return
	}
	writeJSON(w, http.StatusOK, collisionResponse{Collisions: hits})
}

type calendarDay struct {
	Date     model.Date        `json:"date"`
	Holidays []holiday.Holiday `json:"holidays"`
	Cells    []recur.Cell      `json:"cells"`
}

type calendarResponse struct {
	Month string        `json:"month"`
	Rooms model.Rooms   `json:"rooms"`
	Days  []calendarDay `json:"days"`
}

// handleCalendar returns the month grid with holiday annotations.
//
// GET /api/calendar?month=2025-05&roomId=kabinett
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	month, ok := s.monthParam(w, r)
	if !ok {
		return
	}
	roomID := r.URL.Query().Get("roomId")
	days, err := s.bookings.Month(r.Context(), month, roomID)
	if err != nil {
		s.writeServiceError(w, "month grid", err)
		return
	}

	resp := calendarResponse{
		Month: month.String()[:7],
		Rooms: s.bookings.Rooms(),
		Days:  make([]calendarDay, 0, len(days)),
	}
	if roomID != "" {
		room, _ := s.bookings.Rooms().Get(roomID)
		resp.Rooms = model.Rooms{room}
	}
	for _, d := range days {
		hs := s.holidays.For(d.Date)
		if hs == nil {
			hs = []holiday.Holiday{}
		}
		resp.Days = append(resp.Days, calendarDay{Date: d.Date, Holidays: hs, Cells: d.Cells})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHolidays lists reference holidays in [from, to]. Both bounds
// default to the current month.
func (s *Server) handleHolidays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := recur.MonthRange(model.DateOf(s.now()))
	if v := q.Get("from"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from")
			return
		}
		from = d
	}
	if v := q.Get("to"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to")
			return
		}
		to = d
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	writeJSON(w, http.StatusOK, s.holidays.InRange(from, to))
}

// handlePrint renders the month print sheet.
//
// GET /print?month=2025-05
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	month, ok := s.monthParam(w, r)
	if !ok {
		return
	}
	html, err := s.renderSheet(r.Context(), month)
	if err != nil {
		s.writeServiceError(w, "render print sheet", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

// handlePrintPDF prints the month sheet through headless Chromium. The
// sheet is handed over as a data URL so the browser needs no access to
// this server or its credentials.
func (s *Server) handlePrintPDF(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Print.Enabled {
		writeError(w, http.StatusServiceUnavailable, "pdf export disabled")
		return
	}
	month, ok := s.monthParam(w, r)
	if !ok {
		return
	}
	html, err := s.renderSheet(r.Context(), month)
	if err != nil {
		s.writeServiceError(w, "render print sheet", err)
		return
	}

	pdf, err := s.printPDF(r.Context(), capture.Options{
		URL:       "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(html),
		Landscape: s.cfg.Print.Landscape,
		Timeout:   time.Duration(s.cfg.Print.TimeoutSec) * time.Second,
		NoSandbox: s.cfg.Print.NoSandbox,
	})
	if err != nil {
		appLog.Error("pdf export failed", err, "month", month.String())
		writeError(w, http.StatusServiceUnavailable, "pdf export unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="raumbelegung-`+month.String()[:7]+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) renderSheet(ctx context.Context, month model.Date) ([]byte, error) {
	days, err := s.bookings.Month(ctx, month, "")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = printview.Render(&buf, printview.Sheet{
		Title:    calendarName,
		Month:    month,
		Rooms:    s.bookings.Rooms(),
		Days:     days,
		Holidays: s.holidays,
	})
	return buf.Bytes(), err
}

// handleICS serves every event as an iCalendar feed. The rendered feed is
// cached for icsCacheTTL.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	body, err := s.calendarFeed(r.Context())
	if err != nil {
		s.writeServiceError(w, "ics export", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) calendarFeed(ctx context.Context) (string, error) {
	s.icsMu.RLock()
	c, gen := s.icsCache, s.icsGen
	s.icsMu.RUnlock()
	if c != nil && s.now().Sub(c.updatedAt) < icsCacheTTL {
		return c.body, nil
	}

	events, err := s.bookings.List(ctx, booking.Filter{})
	if err != nil {
		return "", err
	}
	body := ics.Export(events, s.bookings.Rooms(), ics.ExportOptions{Name: calendarName, Now: s.now()})

	s.icsMu.Lock()
	if s.icsGen == gen {
		s.icsCache = &icsCache{body: body, updatedAt: s.now()}
	}
	s.icsMu.Unlock()
	return body, nil
}

func (s *Server) invalidateICS() {
	s.icsMu.Lock()
	s.icsCache = nil
	s.icsGen++
	s.icsMu.Unlock()
}

// monthParam reads ?month=YYYY-MM, defaulting to the current month. On a
// malformed value it writes a 400 and returns false.
func (s *Server) monthParam(w http.ResponseWriter, r *http.Request) (model.Date, bool) {
	v := r.URL.Query().Get("month")
	if v == "" {
		return model.DateOf(s.now()).FirstOfMonth(), true
	}
	d, err := model.ParseDate(v + "-01")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month, want YYYY-MM")
		return model.Date{}, false
	}
	return d, true
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidEvent), errors.Is(err, booking.ErrUnknownScope):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	default:
		appLog.Error(op+" failed", err)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		appLog.Debug("rejected request body", "path", r.URL.Path, "reason", err.Error())
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// parseDateParam parses an optional YYYY-MM-DD query value.
func parseDateParam(v string) (model.Date, error) {
	if v == "" {
		return model.Date{}, nil
	}
	return model.ParseDate(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
