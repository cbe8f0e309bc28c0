package recur

import (
	"time"

	"roomcal/internal/model"
)

// Overlaps is the half-open interval test: touching spans do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Slot is a concrete booking window of one room.
type Slot struct {
	StartDate model.Date
	EndDate   model.Date
	StartTime model.Clock
	EndTime   model.Clock
}

// SlotOf returns the slot of ev's base span.
func SlotOf(ev model.Event) Slot {
	return Slot{StartDate: ev.StartDate, EndDate: ev.EndDate, StartTime: ev.StartTime, EndTime: ev.EndTime}
}

// AllDay reports the 00:00-23:59 sentinel.
func (s Slot) AllDay() bool {
	return s.StartTime == model.Midnight && s.EndTime == model.EndOfDay
}

func (s Slot) Start() time.Time { return s.StartDate.At(s.StartTime) }
func (s Slot) End() time.Time   { return s.EndDate.At(s.EndTime) }

// Collide applies the venue policy: an all-day slot blocks every day of its
// range outright, so if either side is all-day the slots collide whenever
// their date ranges intersect. Otherwise the half-open time test decides.
func Collide(a, b Slot) bool {
	if a.AllDay() || b.AllDay() {
		return !a.StartDate.After(b.EndDate) && !b.StartDate.After(a.EndDate)
	}
	return Overlaps(a.Start(), a.End(), b.Start(), b.End())
}
