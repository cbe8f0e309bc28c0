// Package holiday holds the public and school holiday table shown next to
// the calendar. It is reference data only and never affects bookings.
package holiday

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"roomcal/internal/model"
)

// Kind classifies a table entry.
type Kind string

const (
	KindHoliday       Kind = "holiday"
	KindSchoolHoliday Kind = "school_holiday"
	KindAdditional    Kind = "additional_day"
)

// Holiday is one annotated day.
type Holiday struct {
	Date model.Date `json:"date"`
	Name string     `json:"name"`
	Kind Kind       `json:"type"`
}

// entry is the file form: either a single date or an inclusive from/to
// range that expands to one Holiday per day.
type entry struct {
	Date string `yaml:"date"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Name string `yaml:"name"`
	Type Kind   `yaml:"type"`
}

type file struct {
	Holidays []entry `yaml:"holidays"`
}

// Table is an immutable, date-ordered holiday list.
type Table struct {
	days []Holiday
}

// Empty returns a table without entries.
func Empty() *Table { return &Table{} }

// Load reads a YAML table. A missing file yields an empty table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Empty(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML table.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode holidays: %w", err)
	}

	var days []Holiday
	for i, e := range f.Holidays {
		kind := e.Type
		if kind == "" {
			kind = KindHoliday
		}
		from, to, err := e.bounds()
		if err != nil {
			return nil, fmt.Errorf("holiday entry %d (%s): %w", i, e.Name, err)
		}
		for d := from; !d.After(to); d = d.AddDays(1) {
			days = append(days, Holiday{Date: d, Name: e.Name, Kind: kind})
		}
	}
	slices.SortStableFunc(days, func(a, b Holiday) int { return a.Date.Compare(b.Date) })
	return &Table{days: days}, nil
}

func (e entry) bounds() (model.Date, model.Date, error) {
	if e.Date != "" {
		d, err := model.ParseDate(e.Date)
		return d, d, err
	}
	from, err := model.ParseDate(e.From)
	if err != nil {
		return from, from, err
	}
	to, err := model.ParseDate(e.To)
	if err != nil {
		return from, to, err
	}
	if to.Before(from) {
		return from, to, errors.New("to is before from")
	}
	return from, to, nil
}

// For returns every entry on day.
func (t *Table) For(day model.Date) []Holiday {
	return t.InRange(day, day)
}

// InRange returns the entries within [from, to], ordered by date.
func (t *Table) InRange(from, to model.Date) []Holiday {
	out := []Holiday{}
	for _, h := range t.days {
		if h.Date.Before(from) {
			continue
		}
		if h.Date.After(to) {
			break
		}
		out = append(out, h)
	}
	return out
}

func (t *Table) IsHoliday(day model.Date) bool {
	return t.has(day, KindHoliday)
}

func (t *Table) IsSchoolHoliday(day model.Date) bool {
	return t.has(day, KindSchoolHoliday)
}

func (t *Table) has(day model.Date, kind Kind) bool {
	return slices.ContainsFunc(t.For(day), func(h Holiday) bool { return h.Kind == kind })
}

func (t *Table) Len() int { return len(t.days) }
