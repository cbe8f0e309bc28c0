// Package ics renders bookings as an iCalendar feed and reads such feeds
// back for import.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"roomcal/internal/model"
	"roomcal/internal/recur"
)

const (
	// floatingLayout is a DATE-TIME without zone: wall-clock time at the venue.
	floatingLayout = "20060102T150405"
	dateLayout     = "20060102"

	propRoom  = ical.ComponentProperty("X-ROOMCAL-ROOM")
	propGroup = ical.ComponentProperty("X-ROOMCAL-GROUP")
)

// ExportOptions names the feed.
type ExportOptions struct {
	Name string
	// Now is used for DTSTAMP; time.Now when zero.
	Now time.Time
}

// Export renders events as a VCALENDAR. Lazily expanded rows carry an RRULE;
// materialized rows are exported one VEVENT each. All-day events use DATE
// values with an exclusive DTEND.
func Export(events []model.Event, rooms model.Rooms, opts ExportOptions) string {
	cal := ical.NewCalendarFor("roomcal")
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	stamp := opts.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID + "@roomcal")
		ve.SetDtStampTime(stamp)
		if !ev.CreatedAt.IsZero() {
			ve.SetCreatedTime(ev.CreatedAt)
		}
		if !ev.UpdatedAt.IsZero() {
			ve.SetModifiedAt(ev.UpdatedAt)
		}
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		ve.SetLocation(rooms.Name(ev.RoomID))
		ve.SetProperty(propRoom, ev.RoomID)
		if ev.Color != "" {
			ve.SetColor(ev.Color)
		}
		if ev.RepeatGroupID != "" {
			ve.SetProperty(propGroup, ev.RepeatGroupID)
		}

		if ev.AllDay() {
			ve.SetAllDayStartAt(ev.StartDate.Time())
			ve.SetAllDayEndAt(ev.EndDate.AddDays(1).Time())
		} else {
			ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start().Format(floatingLayout))
			ve.SetProperty(ical.ComponentPropertyDtEnd, ev.End().Format(floatingLayout))
		}

		if recur.Expandable(ev) {
			if rule, ok := RuleFor(ev); ok {
				ve.AddRrule(rule)
			}
		}
	}
	return cal.Serialize()
}

var isoWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// RuleFor renders the RRULE value of a recurring event, without DTSTART.
func RuleFor(ev model.Event) (string, bool) {
	if !ev.HasHorizon() {
		return "", false
	}
	opt := rrule.ROption{
		Interval: ev.Interval(),
		// UNTIL is inclusive of the whole last day.
		Until: ev.RepeatUntil.At(model.EndOfDay),
	}
	switch ev.RepeatType {
	case model.RepeatDaily:
		opt.Freq = rrule.DAILY
	case model.RepeatWeekly:
		opt.Freq = rrule.WEEKLY
	case model.RepeatMonthly:
		opt.Freq = rrule.MONTHLY
	case model.RepeatYearly:
		opt.Freq = rrule.YEARLY
	case model.RepeatMonthlyWeekday:
		if ev.RepeatWeekday < 1 || ev.RepeatWeekday > 7 || ev.RepeatWeekOfMonth == 0 {
			return "", false
		}
		opt.Freq = rrule.MONTHLY
		opt.Byweekday = []rrule.Weekday{isoWeekdays[ev.RepeatWeekday-1].Nth(ev.RepeatWeekOfMonth)}
	default:
		return "", false
	}
	if opt.Interval == 1 {
		opt.Interval = 0
	}
	return strings.TrimSpace(opt.RRuleString()), true
}
