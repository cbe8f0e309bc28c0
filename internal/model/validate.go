package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEvent marks drafts rejected at the boundary.
var ErrInvalidEvent = errors.New("invalid event")

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPalette is the venue's fixed set of event colors.
var DefaultPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7",
	"#DDA0DD", "#FFB347", "#98D8C8", "#F7DC6F", "#BB8FCE",
	"#85C1E9", "#F8C471", "#82E0AA", "#F1948A", "#FAD7A0",
	"#FFFFFF", "#E0E0E0", "#808080", "#404040", "#000000",
}

const DefaultColor = "#E0E0E0"

// Normalize fills defaults and drops repeat metadata that has no meaning
// for the chosen repeat type.
func (e *Event) Normalize(defaultColor string) {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	if e.RepeatType == "" {
		e.RepeatType = RepeatNone
	}
	if e.Color == "" {
		e.Color = defaultColor
	}
	e.Color = strings.ToUpper(e.Color)
	if e.RepeatUntil != nil && e.RepeatUntil.IsZero() {
		e.RepeatUntil = nil
	}
	if e.RepeatType == RepeatNone {
		e.RepeatInterval = 0
		e.RepeatUntil = nil
		e.RepeatGroupID = ""
	}
	if e.RepeatType != RepeatMonthlyWeekday {
		e.RepeatWeekday = 0
		e.RepeatWeekOfMonth = 0
	}
}

// Validate checks a draft against the invariants of a stored event. All
// problems are reported together, wrapped in ErrInvalidEvent.
func (e Event) Validate(rooms Rooms, palette []string) error {
	var problems []string

	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if e.RoomID != "" && len(rooms) > 0 && !rooms.Has(e.RoomID) {
		problems = append(problems, fmt.Sprintf("unknown room %q", e.RoomID))
	}
	if e.Color != "" && len(palette) > 0 && !slices.ContainsFunc(palette, func(c string) bool {
		return strings.EqualFold(c, e.Color)
	}) {
		problems = append(problems, fmt.Sprintf("color %s is not in the palette", e.Color))
	}
	if !e.RepeatType.Known() {
		problems = append(problems, fmt.Sprintf("unknown repeat type %q", e.RepeatType))
	}

	switch {
	case e.StartDate.IsZero():
		problems = append(problems, "startDate is required")
	case e.EndDate.IsZero():
		problems = append(problems, "endDate is required")
	case e.EndDate.Before(e.StartDate):
		problems = append(problems, "endDate must not be before startDate")
	case e.EndDate.Equal(e.StartDate) && !e.StartTime.Before(e.EndTime):
		problems = append(problems, "endTime must be after startTime")
	}

	if e.RepeatUntil != nil && !e.StartDate.IsZero() && e.RepeatUntil.Before(e.StartDate) {
		problems = append(problems, "repeatUntil must not be before startDate")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(problems, ", "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "hexcolor":
		return field + " must be a hex color"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
