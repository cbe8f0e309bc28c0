package model

import "time"

// RepeatType selects how an event recurs.
type RepeatType string

const (
	RepeatNone           RepeatType = "none"
	RepeatDaily          RepeatType = "daily"
	RepeatWeekly         RepeatType = "weekly"
	RepeatMonthly        RepeatType = "monthly"
	RepeatMonthlyWeekday RepeatType = "monthly_weekday"
	RepeatYearly         RepeatType = "yearly"
)

// Known reports whether t is one of the supported repeat types. Empty reads
// as none.
func (t RepeatType) Known() bool {
	switch t {
	case "", RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatMonthlyWeekday, RepeatYearly:
		return true
	}
	return false
}

// Room is one bookable space of the venue.
type Room struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Rooms is the fixed room set injected from configuration.
type Rooms []Room

func (rs Rooms) Has(id string) bool {
	_, ok := rs.Get(id)
	return ok
}

func (rs Rooms) Get(id string) (Room, bool) {
	for _, r := range rs {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// Name returns the display name of a room, or the id when unknown.
func (rs Rooms) Name(id string) string {
	if r, ok := rs.Get(id); ok {
		return r.Name
	}
	return id
}

// Event is one booking of a room. Recurring series are stored as one row
// per occurrence sharing RepeatGroupID; rows without a group id but with a
// RepeatUntil are legacy series that are expanded on the fly.
type Event struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Title       string `json:"title" gorm:"not null" validate:"required,max=200"`
	Description string `json:"description" gorm:"type:text"`
	RoomID      string `json:"roomId" gorm:"not null;index;type:varchar(64)" validate:"required"`

	StartDate Date  `json:"startDate" gorm:"type:date;not null;index"`
	EndDate   Date  `json:"endDate" gorm:"type:date;not null"`
	StartTime Clock `json:"startTime" gorm:"type:varchar(5);not null"`
	EndTime   Clock `json:"endTime" gorm:"type:varchar(5);not null"`

	Color string `json:"color" gorm:"type:varchar(7);not null" validate:"required,hexcolor"`

	RepeatType        RepeatType `json:"repeatType" gorm:"type:varchar(20);not null;default:none"`
	RepeatInterval    int        `json:"repeatInterval,omitempty" validate:"gte=0,lte=99"`
	RepeatUntil       *Date      `json:"repeatUntil,omitempty" gorm:"type:date"`
	RepeatGroupID     string     `json:"repeatGroupId,omitempty" gorm:"index;type:varchar(64)"`
	RepeatWeekday     int        `json:"repeatWeekday,omitempty" validate:"omitempty,min=1,max=7"`
	RepeatWeekOfMonth int        `json:"repeatWeekOfMonth,omitempty" validate:"omitempty,min=1,max=5"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AllDay reports the 00:00-23:59 sentinel.
func (e Event) AllDay() bool {
	return e.StartTime == Midnight && e.EndTime == EndOfDay
}

// Interval returns the repeat step, defaulting to 1.
func (e Event) Interval() int {
	if e.RepeatInterval <= 0 {
		return 1
	}
	return e.RepeatInterval
}

// HasHorizon reports a recurring event with a repeat-until date. Without a
// horizon the repeat metadata is informational only.
func (e Event) HasHorizon() bool {
	return e.RepeatType != RepeatNone && e.RepeatType != "" && e.RepeatUntil != nil
}

// Materialized reports whether the row belongs to a stored recurrence group
// and therefore already stands for exactly one occurrence.
func (e Event) Materialized() bool {
	return e.RepeatGroupID != ""
}

// SpanDays is the number of days the event extends past its start date.
func (e Event) SpanDays() int {
	return e.EndDate.DaysSince(e.StartDate)
}

// Start and End combine the dates with the wall-clock times.
func (e Event) Start() time.Time { return e.StartDate.At(e.StartTime) }
func (e Event) End() time.Time   { return e.EndDate.At(e.EndTime) }
