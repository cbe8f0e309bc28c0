package recur

import (
	"iter"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"roomcal/internal/model"
)

// MaxOccurrences is the hard limit on rows generated for one series.
const MaxOccurrences = 100

// Span is one concrete occurrence, inclusive on both dates.
type Span struct {
	Start model.Date
	End   model.Date
}

// Expand collects Occurrences(ev, MaxOccurrences).
func Expand(ev model.Event) []Span {
	return slices.Collect(Occurrences(ev, MaxOccurrences))
}

// Occurrences yields the occurrence spans of ev in order, starting with
// (StartDate, EndDate) and stepping while the start stays on or before
// RepeatUntil. At most limit spans are produced; limit is clamped to
// MaxOccurrences. Every span keeps the base event's length in days.
//
// An event without a horizon yields its own span. An unknown repeat type
// yields nothing. monthly_weekday steps to the Nth repeatWeekday of each
// target month counted from the 1st, so later occurrences may land on days
// OccursOnDay does not report for the same event.
func Occurrences(ev model.Event, limit int) iter.Seq[Span] {
	if limit <= 0 || limit > MaxOccurrences {
		limit = MaxOccurrences
	}
	span := max(ev.SpanDays(), 0)
	at := func(start model.Date) Span {
		return Span{Start: start, End: start.AddDays(span)}
	}

	return func(yield func(Span) bool) {
		if !ev.RepeatType.Known() {
			return
		}
		if !ev.HasHorizon() {
			yield(Span{Start: ev.StartDate, End: ev.EndDate})
			return
		}
		for start := range starts(ev, limit) {
			if !yield(at(start)) {
				return
			}
		}
	}
}

// starts yields occurrence start dates within the horizon.
func starts(ev model.Event, limit int) iter.Seq[model.Date] {
	until := *ev.RepeatUntil
	n := ev.Interval()

	switch ev.RepeatType {
	case model.RepeatDaily:
		return ruleStarts(ev, rrule.DAILY, limit)
	case model.RepeatWeekly:
		return ruleStarts(ev, rrule.WEEKLY, limit)
	case model.RepeatMonthly:
		return stepStarts(ev.StartDate, until, limit, func(d model.Date) model.Date {
			return d.AddDate(0, n, 0)
		})
	case model.RepeatYearly:
		return stepStarts(ev.StartDate, until, limit, func(d model.Date) model.Date {
			return d.AddDate(n, 0, 0)
		})
	case model.RepeatMonthlyWeekday:
		if ev.RepeatWeekday == 0 || ev.RepeatWeekOfMonth == 0 {
			return stepStarts(ev.StartDate, until, 1, nil)
		}
		month := ev.StartDate.FirstOfMonth()
		return stepStarts(ev.StartDate, until, limit, func(model.Date) model.Date {
			month = month.AddDate(0, n, 0)
			return nthWeekday(month, ev.RepeatWeekday, ev.RepeatWeekOfMonth)
		})
	}
	return func(func(model.Date) bool) {}
}

// ruleStarts delegates daily and weekly stepping to an RFC 5545 rule anchored
// at the start date.
func ruleStarts(ev model.Event, freq rrule.Frequency, limit int) iter.Seq[model.Date] {
	return func(yield func(model.Date) bool) {
		r, err := rrule.NewRRule(rrule.ROption{
			Freq:     freq,
			Interval: ev.Interval(),
			Dtstart:  ev.StartDate.Time(),
			Until:    ev.RepeatUntil.Time(),
			Count:    limit,
		})
		if err != nil {
			panic("recur: building rule for " + ev.ID + ": " + err.Error())
		}
		next := r.Iterator()
		for t, ok := next(); ok; t, ok = next() {
			if !yield(model.DateOf(t)) {
				return
			}
		}
	}
}

// stepStarts yields first and then repeatedly applies step while the result
// stays on or before until.
func stepStarts(first, until model.Date, limit int, step func(model.Date) model.Date) iter.Seq[model.Date] {
	return func(yield func(model.Date) bool) {
		d := first
		for i := 0; i < limit && !d.After(until); i++ {
			if !yield(d) || step == nil {
				return
			}
			d = step(d)
		}
	}
}

// nthWeekday returns the nth (1-based) ISO weekday of the month starting at
// first. A fifth weekday that does not exist rolls into the next month.
func nthWeekday(first model.Date, isoWeekday, nth int) model.Date {
	want := time.Weekday(isoWeekday % 7)
	offset := (int(want) - int(first.Weekday()) + 7) % 7
	return first.AddDays(offset + (nth-1)*7)
}
