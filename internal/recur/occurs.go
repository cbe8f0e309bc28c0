// Package recur is the recurrence engine: occurrence expansion, the overlap
// test, collision detection and recurrence-group materialization. It is pure
// and operates on snapshots handed in by the caller.
package recur

import "roomcal/internal/model"

// Expandable reports whether ev is computed lazily: a recurring row with a
// horizon that was not materialized into a group. Every other row stands for
// exactly its own [StartDate, EndDate] span.
func Expandable(ev model.Event) bool {
	return ev.HasHorizon() && !ev.Materialized()
}

// OccursOnDay reports whether ev covers day.
//
// Multi-day occurrences cover every day of their span. The interval only
// applies to daily and weekly; monthly and yearly match every month or year.
// monthly_weekday matches by the start date's weekday and ceil(dayOfMonth/7),
// which is not the same rule Occurrences steps with; see Occurrences. A
// monthly_weekday row without weekday fields never occurs.
func OccursOnDay(ev model.Event, day model.Date) bool {
	if !Expandable(ev) {
		return !day.Before(ev.StartDate) && !day.After(ev.EndDate)
	}

	span := max(ev.SpanDays(), 0)
	for back := 0; back <= span; back++ {
		start := day.AddDays(-back)
		if start.Before(ev.StartDate) {
			break
		}
		if start.After(*ev.RepeatUntil) {
			continue
		}
		if startsOn(ev, start) {
			return true
		}
	}
	return false
}

// startsOn reports whether an occurrence of ev begins on day. day is known to
// lie within [StartDate, RepeatUntil].
func startsOn(ev model.Event, day model.Date) bool {
	base := ev.StartDate
	n := ev.Interval()

	switch ev.RepeatType {
	case model.RepeatDaily:
		return day.DaysSince(base)%n == 0
	case model.RepeatWeekly:
		d := day.DaysSince(base)
		return d%7 == 0 && (d/7)%n == 0
	case model.RepeatMonthly:
		return day.Day() == base.Day()
	case model.RepeatMonthlyWeekday:
		if ev.RepeatWeekday == 0 || ev.RepeatWeekOfMonth == 0 {
			return false
		}
		return day.Weekday() == base.Weekday() && day.WeekOfMonth() == base.WeekOfMonth()
	case model.RepeatYearly:
		return day.Day() == base.Day() && day.Month() == base.Month()
	}
	return false
}
