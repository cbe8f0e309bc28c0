package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
)

// Parse reads a VCALENDAR and returns one draft per VEVENT. Rooms are taken
// from X-ROOMCAL-ROOM or matched by LOCATION against the room names.
// VEVENTs that cannot be mapped are logged and skipped.
func Parse(r io.Reader, rooms model.Rooms) ([]model.Event, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, rooms)
		if perr != nil {
			appLog.Warn("skipping vevent", "uid", propValue(ve, ical.ComponentPropertyUniqueId), "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}
	appLog.Info("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, rooms model.Rooms) (model.Event, error) {
	ev := model.Event{
		ID:            strings.TrimSuffix(propValue(ve, ical.ComponentPropertyUniqueId), "@roomcal"),
		Title:         propValue(ve, ical.ComponentPropertySummary),
		Description:   propValue(ve, ical.ComponentPropertyDescription),
		Color:         strings.ToUpper(propValue(ve, ical.ComponentPropertyColor)),
		RepeatType:    model.RepeatNone,
		RepeatGroupID: propValue(ve, propGroup),
	}
	if ev.Title == "" {
		return ev, errors.New("missing SUMMARY")
	}

	ev.RoomID = propValue(ve, propRoom)
	if ev.RoomID == "" {
		loc := propValue(ve, ical.ComponentPropertyLocation)
		for _, r := range rooms {
			if strings.EqualFold(r.Name, loc) || r.ID == loc {
				ev.RoomID = r.ID
				break
			}
		}
	}
	if ev.RoomID == "" {
		return ev, errors.New("no known room")
	}

	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return ev, errors.New("missing DTSTART")
	}
	end := ve.GetProperty(ical.ComponentPropertyDtEnd)

	if isDateValue(&start.BaseProperty) {
		d, err := parseDate(start.Value)
		if err != nil {
			return ev, err
		}
		ev.StartDate, ev.EndDate = d, d
		if end != nil {
			// DTEND of an all-day event is exclusive.
			if e, err := parseDate(end.Value); err == nil && e.After(d) {
				ev.EndDate = e.AddDays(-1)
			}
		}
		ev.StartTime, ev.EndTime = model.Midnight, model.EndOfDay
	} else {
		s, err := parseWallClock(start.Value)
		if err != nil {
			return ev, err
		}
		e := s.Add(time.Hour)
		if end != nil {
			if e, err = parseWallClock(end.Value); err != nil {
				return ev, err
			}
		}
		ev.StartDate, ev.StartTime = model.DateOf(s), model.NewClock(s.Hour(), s.Minute())
		ev.EndDate, ev.EndTime = model.DateOf(e), model.NewClock(e.Hour(), e.Minute())
	}

	if rule := propValue(ve, ical.ComponentPropertyRrule); rule != "" {
		if err := applyRule(&ev, rule); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

// applyRule maps an RRULE onto the repeat fields. Rules without UNTIL are
// kept as informational recurrences without a horizon.
func applyRule(ev *model.Event, rule string) error {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return fmt.Errorf("rrule %q: %w", rule, err)
	}
	switch opt.Freq {
	case rrule.DAILY:
		ev.RepeatType = model.RepeatDaily
	case rrule.WEEKLY:
		ev.RepeatType = model.RepeatWeekly
	case rrule.MONTHLY:
		ev.RepeatType = model.RepeatMonthly
		if len(opt.Byweekday) == 1 && opt.Byweekday[0].N() > 0 {
			ev.RepeatType = model.RepeatMonthlyWeekday
			ev.RepeatWeekday = opt.Byweekday[0].Day() + 1
			ev.RepeatWeekOfMonth = opt.Byweekday[0].N()
		}
	case rrule.YEARLY:
		ev.RepeatType = model.RepeatYearly
	default:
		return fmt.Errorf("unsupported frequency %v", opt.Freq)
	}
	if opt.Interval > 1 {
		ev.RepeatInterval = opt.Interval
	}
	if !opt.Until.IsZero() {
		until := model.DateOf(opt.Until)
		ev.RepeatUntil = &until
	}
	return nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func isDateValue(p *ical.BaseProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func parseDate(v string) (model.Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(v))
	if err != nil {
		return model.Date{}, fmt.Errorf("invalid DATE %q: %w", v, err)
	}
	return model.DateOf(t), nil
}

// parseWallClock reads a DATE-TIME as venue wall-clock time. A trailing Z
// or a TZID is ignored: the calendar has no time zones.
func parseWallClock(v string) (time.Time, error) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "Z")
	t, err := time.Parse(floatingLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid DATE-TIME %q: %w", v, err)
	}
	return t, nil
}
