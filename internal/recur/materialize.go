package recur

import (
	"time"

	"github.com/google/uuid"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
)

// Materializer turns an authored draft into the rows to persist.
type Materializer struct {
	// MaxOccurrences caps the rows of one series (at most 100).
	MaxOccurrences int
	// NewGroupID returns a fresh repeat group id; uuid.NewString by default.
	NewGroupID func() string
}

// Materialize returns one row for a non-recurring draft (or one without a
// horizon), and otherwise one row per occurrence, all sharing a fresh
// RepeatGroupID and differing only in their dates. Series longer than the
// cap are truncated silently. Returned rows carry no id or timestamps.
//
// The draft must already be validated; an inverted range panics.
func (m Materializer) Materialize(draft model.Event) []model.Event {
	mustBeOrdered(draft)

	draft.ID = ""
	draft.CreatedAt, draft.UpdatedAt = time.Time{}, time.Time{}
	if !draft.HasHorizon() {
		draft.RepeatGroupID = ""
		return []model.Event{draft}
	}

	limit := m.MaxOccurrences
	if limit <= 0 || limit > MaxOccurrences {
		limit = MaxOccurrences
	}
	newID := m.NewGroupID
	if newID == nil {
		newID = uuid.NewString
	}

	group := newID()
	var rows []model.Event
	for occ := range Occurrences(draft, limit) {
		row := draft
		row.StartDate, row.EndDate = occ.Start, occ.End
		row.RepeatGroupID = group
		rows = append(rows, row)
	}
	if len(rows) == limit {
		appLog.Debug("recurrence reached occurrence cap", "title", draft.Title, "limit", limit, "last", rows[len(rows)-1].StartDate)
	}
	return rows
}

// Materialize runs a zero-value Materializer.
func Materialize(draft model.Event) []model.Event {
	return Materializer{}.Materialize(draft)
}

func mustBeOrdered(ev model.Event) {
	switch {
	case ev.StartDate.IsZero() || ev.EndDate.IsZero():
		panic("recur: materializing draft without dates")
	case ev.EndDate.Before(ev.StartDate):
		panic("recur: materializing draft with endDate before startDate")
	case ev.EndDate.Equal(ev.StartDate) && !ev.StartTime.Before(ev.EndTime):
		panic("recur: materializing draft with endTime not after startTime")
	}
}
