// Package booking is the application service around the recurrence engine:
// it validates drafts, materializes series, reports advisory collisions and
// applies single or whole-series edits to the store.
package booking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/recur"
	"roomcal/internal/store"
)

// ErrUnknownScope is returned for an edit scope other than single or all.
var ErrUnknownScope = errors.New("unknown scope")

// Scope selects how much of a series an update or delete touches.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeAll    Scope = "all"
)

// ParseScope maps the query value to a Scope; empty means single.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeSingle:
		return ScopeSingle, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownScope, s)
}

// Options configures a Service.
type Options struct {
	Rooms           model.Rooms
	Palette         []string
	DefaultColor    string
	MaxOccurrences  int
	ScanCeilingDays int
}

// Service coordinates the store and the engine. It holds no event state of
// its own; every call works on a fresh snapshot.
type Service struct {
	store        store.Store
	rooms        model.Rooms
	palette      []string
	defaultColor string
	detector     recur.Detector
	materializer recur.Materializer
}

func New(st store.Store, opts Options) *Service {
	if opts.DefaultColor == "" {
		opts.DefaultColor = model.DefaultColor
	}
	return &Service{
		store:        st,
		rooms:        opts.Rooms,
		palette:      opts.Palette,
		defaultColor: opts.DefaultColor,
		detector:     recur.Detector{MaxOccurrences: opts.MaxOccurrences, ScanCeilingDays: opts.ScanCeilingDays},
		materializer: recur.Materializer{MaxOccurrences: opts.MaxOccurrences},
	}
}

// Result is the outcome of a write: the rows now stored and the events they
// collide with. Collisions never block a save.
type Result struct {
	Events     []model.Event `json:"events"`
	Collisions []model.Event `json:"collisions"`
	// Approximate is set when a legacy series was selected heuristically.
	Approximate bool `json:"approximate,omitempty"`
}

func (s *Service) Rooms() model.Rooms { return s.rooms }

func (s *Service) prepare(draft *model.Event) error {
	draft.Normalize(s.defaultColor)
	return draft.Validate(s.rooms, s.palette)
}

// Create validates and materializes draft and stores every resulting row.
func (s *Service) Create(ctx context.Context, draft model.Event) (Result, error) {
	if err := s.prepare(&draft); err != nil {
		return Result{}, err
	}
	existing, err := s.store.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list events: %w", err)
	}

	rows := s.materializer.Materialize(draft)
	collisions := s.collisionsFor(rows, existing, nil)

	saved, err := s.store.Create(ctx, rows...)
	if err != nil {
		return Result{}, fmt.Errorf("create events: %w", err)
	}
	appLog.Info("event created", "title", draft.Title, "room", draft.RoomID, "rows", len(saved), "collisions", len(collisions))
	return Result{Events: saved, Collisions: collisions}, nil
}

// Update edits the event id. ScopeSingle rewrites only that row and keeps
// its group tag; ScopeAll deletes the whole series and materializes draft
// in its place.
func (s *Service) Update(ctx context.Context, id string, draft model.Event, scope Scope) (Result, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.prepare(&draft); err != nil {
		return Result{}, err
	}
	existing, err := s.store.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list events: %w", err)
	}

	switch scope {
	case ScopeSingle:
		draft.ID = id
		if draft.RepeatType != model.RepeatNone {
			draft.RepeatGroupID = cur.RepeatGroupID
		}
		collisions := orEmpty(s.detector.FindCollisions(recur.CandidateOf(draft), existing, id))
		saved, err := s.store.Update(ctx, draft)
		if err != nil {
			return Result{}, fmt.Errorf("update event %s: %w", id, err)
		}
		appLog.Info("event updated", "id", id, "scope", scope, "collisions", len(collisions))
		return Result{Events: []model.Event{saved}, Collisions: collisions}, nil

	case ScopeAll:
		members, authoritative := recur.SeriesMembers(cur, existing)
		if !authoritative {
			appLog.Warn("series selected by title/repeat heuristic", "id", id, "title", cur.Title, "rows", len(members))
		}
		memberIDs := idsOf(members)
		rows := s.materializer.Materialize(draft)
		collisions := s.collisionsFor(rows, existing, memberIDs)

		saved, err := s.store.Replace(ctx, memberIDs, rows)
		if err != nil {
			return Result{}, fmt.Errorf("replace series of %s: %w", id, err)
		}
		appLog.Info("series updated", "id", id, "removed", len(memberIDs), "rows", len(saved), "collisions", len(collisions))
		return Result{Events: saved, Collisions: collisions, Approximate: !authoritative}, nil
	}
	return Result{}, fmt.Errorf("%w %q", ErrUnknownScope, scope)
}

// Delete removes the event id, or its whole series for ScopeAll. It returns
// the removed ids.
func (s *Service) Delete(ctx context.Context, id string, scope Scope) ([]string, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var ids []string
	switch scope {
	case ScopeSingle:
		ids = []string{id}
	case ScopeAll:
		existing, err := s.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		members, authoritative := recur.SeriesMembers(cur, existing)
		if !authoritative {
			appLog.Warn("series selected by title/repeat heuristic", "id", id, "title", cur.Title, "rows", len(members))
		}
		ids = idsOf(members)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownScope, scope)
	}

	if err := s.store.Delete(ctx, ids...); err != nil {
		return nil, fmt.Errorf("delete events: %w", err)
	}
	appLog.Info("events deleted", "id", id, "scope", scope, "rows", len(ids))
	return ids, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Event, error) {
	return s.store.Get(ctx, id)
}

// CheckCollisions runs the detector against the current snapshot.
func (s *Service) CheckCollisions(ctx context.Context, c recur.Candidate, excludeID string) ([]model.Event, error) {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return nil, fmt.Errorf("%w: candidate needs startDate and endDate", model.ErrInvalidEvent)
	}
	if c.EndDate.Before(c.StartDate) {
		return nil, fmt.Errorf("%w: endDate must not be before startDate", model.ErrInvalidEvent)
	}
	existing, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return orEmpty(s.detector.FindCollisions(c, existing, excludeID)), nil
}

// Filter narrows List. Zero dates leave that side open.
type Filter struct {
	From   model.Date
	To     model.Date
	RoomID string
}

var (
	openFrom = model.NewDate(1, 1, 1)
	openTo   = model.NewDate(9999, 12, 31)
)

// List returns events occurring within the filter range, ordered by start
// date and time.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Event, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	from, to := f.From, f.To
	if from.IsZero() {
		from = openFrom
	}
	if to.IsZero() {
		to = openTo
	}
	return orEmpty(recur.Between(events, from, to, f.RoomID)), nil
}

// Month returns the day grid of the month containing day. A non-empty
// roomID limits the grid to that room.
func (s *Service) Month(ctx context.Context, day model.Date, roomID string) ([]recur.Day, error) {
	rooms := s.rooms
	if roomID != "" {
		r, ok := s.rooms.Get(roomID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown room %q", model.ErrInvalidEvent, roomID)
		}
		rooms = model.Rooms{r}
	}
	events, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	from, to := recur.MonthRange(day)
	return recur.Grid(events, rooms, from, to), nil
}

// collisionsFor merges the collisions of every row, skipping events in
// ignore (the series being replaced).
func (s *Service) collisionsFor(rows, existing []model.Event, ignore []string) []model.Event {
	if len(ignore) > 0 {
		existing = slices.DeleteFunc(slices.Clone(existing), func(ev model.Event) bool {
			return slices.Contains(ignore, ev.ID)
		})
	}
	out := []model.Event{}
	seen := make(map[string]struct{})
	for _, row := range rows {
		for _, hit := range s.detector.FindCollisions(recur.CandidateOf(row), existing, "") {
			if _, dup := seen[hit.ID]; dup {
				continue
			}
			seen[hit.ID] = struct{}{}
			out = append(out, hit)
		}
	}
	return out
}

func orEmpty(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	return events
}

func idsOf(events []model.Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}

// ImportReport summarizes an Import.
type ImportReport struct {
	Created    int
	Skipped    int
	Collisions int
}

// Import creates every draft through Create. Drafts failing validation are
// logged and skipped; any other error stops the import.
func (s *Service) Import(ctx context.Context, drafts []model.Event) (ImportReport, error) {
	var rep ImportReport
	for _, draft := range drafts {
		res, err := s.Create(ctx, draft)
		if errors.Is(err, model.ErrInvalidEvent) {
			appLog.Warn("import skipped draft", "title", draft.Title, "reason", err.Error())
			rep.Skipped++
			continue
		}
		if err != nil {
			return rep, err
		}
		rep.Created += len(res.Events)
		rep.Collisions += len(res.Collisions)
	}
	return rep, nil
}

// RecentLimit caps Recent.
const RecentLimit = 50

// RecentGroup is one recently changed booking: a whole series or a single
// row. Event is the series' earliest row.
type RecentGroup struct {
	Event      model.Event `json:"event"`
	Rows       int         `json:"rows"`
	LastChange time.Time   `json:"lastChange"`
}

// Recent lists bookings by their latest change, newest first. Rows of a
// recurring series are folded by repeat group. limit is clamped to
// RecentLimit.
func (s *Service) Recent(ctx context.Context, limit int) ([]RecentGroup, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}
	return recentGroups(events, limit), nil
}

func recentGroups(events []model.Event, limit int) []RecentGroup {
	groups := []RecentGroup{}
	index := make(map[string]int)
	for _, ev := range events {
		key := ev.ID
		if ev.RepeatType != model.RepeatNone && ev.RepeatGroupID != "" {
			key = "group:" + ev.RepeatGroupID
		}
		changed := lastChange(ev)

		i, seen := index[key]
		if !seen {
			index[key] = len(groups)
			groups = append(groups, RecentGroup{Event: ev, Rows: 1, LastChange: changed})
			continue
		}
		g := &groups[i]
		g.Rows++
		if changed.After(g.LastChange) {
			g.LastChange = changed
		}
		if ev.StartDate.Before(g.Event.StartDate) {
			g.Event = ev
		}
	}

	slices.SortStableFunc(groups, func(a, b RecentGroup) int {
		return cmp.Or(b.LastChange.Compare(a.LastChange), a.Event.StartDate.Compare(b.Event.StartDate))
	})
	if len(groups) > limit {
		groups = groups[:limit]
	}
	return groups
}

func lastChange(ev model.Event) time.Time {
	if ev.UpdatedAt.IsZero() {
		return ev.CreatedAt
	}
	return ev.UpdatedAt
}
