package recur

import "roomcal/internal/model"

// DefaultScanCeilingDays bounds how far past its start a lazily expanded
// series is walked.
const DefaultScanCeilingDays = 730

// Candidate is a slot someone wants to book. An empty RoomID matches all
// rooms.
type Candidate struct {
	RoomID    string      `json:"roomId"`
	StartDate model.Date  `json:"startDate"`
	EndDate   model.Date  `json:"endDate"`
	StartTime model.Clock `json:"startTime"`
	EndTime   model.Clock `json:"endTime"`
}

// CandidateOf returns the candidate slot for ev's base span.
func CandidateOf(ev model.Event) Candidate {
	return Candidate{
		RoomID:    ev.RoomID,
		StartDate: ev.StartDate,
		EndDate:   ev.EndDate,
		StartTime: ev.StartTime,
		EndTime:   ev.EndTime,
	}
}

func (c Candidate) Slot() Slot {
	return Slot{StartDate: c.StartDate, EndDate: c.EndDate, StartTime: c.StartTime, EndTime: c.EndTime}
}

// Detector finds stored events colliding with a candidate. The zero value
// uses MaxOccurrences and DefaultScanCeilingDays.
type Detector struct {
	MaxOccurrences  int
	ScanCeilingDays int
}

// FindCollisions returns the stored events that collide with c, one entry
// per id in discovery order. The event with excludeID never collides.
// Collisions are advisory; callers decide whether to save anyway.
func (d Detector) FindCollisions(c Candidate, events []model.Event, excludeID string) []model.Event {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		panic("recur: collision candidate without dates")
	}

	slot := c.Slot()
	seen := make(map[string]struct{})
	var out []model.Event

	for _, ev := range events {
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		if c.RoomID != "" && ev.RoomID != c.RoomID {
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		if !d.collides(slot, ev) {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// collides reports whether any occurrence of ev collides with slot. A lazy
// series is walked day by day from its start; the walk stops at the first
// colliding occurrence.
func (d Detector) collides(slot Slot, ev model.Event) bool {
	if !Expandable(ev) {
		return Collide(slot, SlotOf(ev))
	}

	last := *ev.RepeatUntil
	if slot.EndDate.Before(last) {
		last = slot.EndDate
	}
	if ceil := ev.StartDate.AddDays(d.scanCeiling()); ceil.Before(last) {
		last = ceil
	}

	span := max(ev.SpanDays(), 0)
	limit := d.limit()
	found := 0
	for day := ev.StartDate; !day.After(last) && found < limit; day = day.AddDays(1) {
		if !startsOn(ev, day) {
			continue
		}
		found++
		occ := Slot{StartDate: day, EndDate: day.AddDays(span), StartTime: ev.StartTime, EndTime: ev.EndTime}
		if Collide(slot, occ) {
			return true
		}
	}
	return false
}

func (d Detector) limit() int {
	if d.MaxOccurrences <= 0 || d.MaxOccurrences > MaxOccurrences {
		return MaxOccurrences
	}
	return d.MaxOccurrences
}

func (d Detector) scanCeiling() int {
	if d.ScanCeilingDays <= 0 {
		return DefaultScanCeilingDays
	}
	return d.ScanCeilingDays
}

// FindCollisions runs a zero-value Detector.
func FindCollisions(c Candidate, events []model.Event, excludeID string) []model.Event {
	return Detector{}.FindCollisions(c, events, excludeID)
}
