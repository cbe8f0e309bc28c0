package recur

import (
	"cmp"
	"slices"

	"roomcal/internal/model"
)

// Between returns the events that occur on at least one day of [from, to],
// optionally limited to one room, ordered by start date then start time.
func Between(events []model.Event, from, to model.Date, roomID string) []model.Event {
	var out []model.Event
	for _, ev := range events {
		if roomID != "" && ev.RoomID != roomID {
			continue
		}
		if occursWithin(ev, from, to) {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, byStart)
	return out
}

func occursWithin(ev model.Event, from, to model.Date) bool {
	if !Expandable(ev) {
		return !ev.StartDate.After(to) && !ev.EndDate.Before(from)
	}
	first := from
	if ev.StartDate.After(first) {
		first = ev.StartDate
	}
	last := ev.RepeatUntil.AddDays(max(ev.SpanDays(), 0))
	if to.Before(last) {
		last = to
	}
	for day := first; !day.After(last); day = day.AddDays(1) {
		if OccursOnDay(ev, day) {
			return true
		}
	}
	return false
}

func byStart(a, b model.Event) int {
	return cmp.Or(
		a.StartDate.Compare(b.StartDate),
		a.StartTime.Compare(b.StartTime),
		cmp.Compare(a.Title, b.Title),
	)
}

// Cell lists the events of one room on one day.
type Cell struct {
	Room   model.Room    `json:"room"`
	Events []model.Event `json:"events"`
}

// Day is one row of the calendar grid, with a cell per room.
type Day struct {
	Date  model.Date `json:"date"`
	Cells []Cell     `json:"cells"`
}

// Grid projects events onto [from, to] x rooms through OccursOnDay. Events
// within a cell are ordered by start time.
func Grid(events []model.Event, rooms model.Rooms, from, to model.Date) []Day {
	visible := Between(events, from, to, "")

	var days []Day
	for day := from; !day.After(to); day = day.AddDays(1) {
		row := Day{Date: day, Cells: make([]Cell, len(rooms))}
		for i, room := range rooms {
			row.Cells[i].Room = room
			for _, ev := range visible {
				if ev.RoomID == room.ID && OccursOnDay(ev, day) {
					row.Cells[i].Events = append(row.Cells[i].Events, ev)
				}
			}
			slices.SortStableFunc(row.Cells[i].Events, func(a, b model.Event) int {
				return cmp.Or(a.StartTime.Compare(b.StartTime), cmp.Compare(a.Title, b.Title))
			})
		}
		days = append(days, row)
	}
	return days
}

// MonthRange returns the first and last day of the month containing d.
func MonthRange(d model.Date) (from, to model.Date) {
	from = d.FirstOfMonth()
	return from, from.AddDate(0, 1, -1)
}
