package recur

import "roomcal/internal/model"

// SeriesMembers returns the rows that form target's series, target included.
//
// Rows with a RepeatGroupID are grouped exactly. Legacy recurring rows fall
// back to matching (title, repeatType, repeatUntil), which may sweep in
// unrelated events; authoritative is false in that case. A non-recurring
// row is its own series.
func SeriesMembers(target model.Event, events []model.Event) (members []model.Event, authoritative bool) {
	switch {
	case target.Materialized():
		for _, ev := range events {
			if ev.RepeatGroupID == target.RepeatGroupID {
				members = append(members, ev)
			}
		}
		authoritative = true
	case target.RepeatType != model.RepeatNone && target.RepeatType != "":
		for _, ev := range events {
			if ev.ID == target.ID || (ev.RepeatGroupID == "" && sameLegacySeries(ev, target)) {
				members = append(members, ev)
			}
		}
	default:
		return []model.Event{target}, true
	}

	if !containsID(members, target.ID) {
		members = append([]model.Event{target}, members...)
	}
	return members, authoritative
}

func sameLegacySeries(a, b model.Event) bool {
	if a.Title != b.Title || a.RepeatType != b.RepeatType {
		return false
	}
	switch {
	case a.RepeatUntil == nil && b.RepeatUntil == nil:
		return true
	case a.RepeatUntil == nil || b.RepeatUntil == nil:
		return false
	}
	return a.RepeatUntil.Equal(*b.RepeatUntil)
}

func containsID(events []model.Event, id string) bool {
	for _, ev := range events {
		if ev.ID == id {
			return true
		}
	}
	return false
}
