// Package printview renders the month print sheet: one row per day, one
// column per room, with holiday annotations.
package printview

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"roomcal/internal/holiday"
	"roomcal/internal/model"
	"roomcal/internal/recur"
)

var (
	weekdays = [...]string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"}
	months   = [...]string{"Januar", "Februar", "März", "April", "Mai", "Juni",
		"Juli", "August", "September", "Oktober", "November", "Dezember"}
)

// Sheet is the input of Render.
type Sheet struct {
	Title    string
	Month    model.Date
	Rooms    model.Rooms
	Days     []recur.Day
	Holidays *holiday.Table
}

type entry struct {
	Time  string
	Title string
	Color string
}

type row struct {
	ISODate string
	Label   string
	Weekend bool
	Holiday bool
	School  bool
	Notes   []string
	Cells   [][]entry
}

type page struct {
	Title   string
	Heading string
	Rooms   model.Rooms
	Rows    []row
}

var sheetTmpl = template.Must(template.New("sheet").Parse(`<!DOCTYPE html>
<html lang="de">
<head>
<meta charset="utf-8">
<title>{{.Title}} {{.Heading}}</title>
<style>
@page { margin: 8mm; }
body { font: 9pt sans-serif; margin: 0; }
h1 { font-size: 13pt; margin: 0 0 4pt; }
table { border-collapse: collapse; width: 100%; table-layout: fixed; }
th, td { border: 1px solid #999; padding: 1pt 3pt; vertical-align: top; }
th.day { width: 5.5em; text-align: left; }
tr.weekend th, tr.weekend td { background: #f2f2f2; }
tr.holiday th { color: #b00020; }
tr.school th { font-style: italic; }
.note { display: block; font-size: 7pt; font-weight: normal; }
.ev { display: block; border-left: 3pt solid; padding-left: 2pt; margin: 1pt 0; }
.time { color: #555; }
</style>
</head>
<body>
<div data-ready="true">
<h1>{{.Title}} {{.Heading}}</h1>
<table>
<thead><tr><th class="day"></th>{{range .Rooms}}<th>{{.Name}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr data-date="{{.ISODate}}" class="{{if .Weekend}}weekend {{end}}{{if .Holiday}}holiday {{end}}{{if .School}}school{{end}}">
<th class="day">{{.Label}}{{range .Notes}}<span class="note">{{.}}</span>{{end}}</th>
{{range .Cells}}<td>{{range .}}<span class="ev" style="border-color: {{.Color}}">{{if .Time}}<span class="time">{{.Time}}</span> {{end}}{{.Title}}</span>{{end}}</td>{{end}}
</tr>
{{end}}</tbody>
</table>
</div>
</body>
</html>
`))

// Render writes the sheet as a standalone HTML document.
func Render(w io.Writer, s Sheet) error {
	holidays := s.Holidays
	if holidays == nil {
		holidays = holiday.Empty()
	}
	title := s.Title
	if title == "" {
		title = "Raumbelegung"
	}
	p := page{
		Title:   title,
		Heading: fmt.Sprintf("%s %d", months[s.Month.Month()-1], s.Month.Year()),
		Rooms:   s.Rooms,
		Rows:    make([]row, 0, len(s.Days)),
	}
	for _, day := range s.Days {
		p.Rows = append(p.Rows, buildRow(day, holidays))
	}
	if err := sheetTmpl.Execute(w, p); err != nil {
		return fmt.Errorf("render print sheet: %w", err)
	}
	return nil
}

func buildRow(day recur.Day, holidays *holiday.Table) row {
	wd := day.Date.Weekday()
	r := row{
		ISODate: day.Date.String(),
		Label:   fmt.Sprintf("%s %02d.%02d.", weekdays[wd], day.Date.Day(), int(day.Date.Month())),
		Weekend: wd == time.Saturday || wd == time.Sunday,
		Holiday: holidays.IsHoliday(day.Date),
		School:  holidays.IsSchoolHoliday(day.Date),
		Cells:   make([][]entry, len(day.Cells)),
	}
	for _, h := range holidays.For(day.Date) {
		r.Notes = append(r.Notes, h.Name)
	}
	for i, cell := range day.Cells {
		for _, ev := range cell.Events {
			r.Cells[i] = append(r.Cells[i], entryFor(ev, day.Date))
		}
	}
	return r
}

// entryFor labels an event on one of its days. Middle days of a multi-day
// event and all-day events carry no time.
func entryFor(ev model.Event, day model.Date) entry {
	e := entry{Title: ev.Title, Color: ev.Color}
	if ev.AllDay() {
		return e
	}
	var parts []string
	if ev.SpanDays() == 0 || day.Equal(ev.StartDate) {
		parts = append(parts, ev.StartTime.String())
	}
	if ev.SpanDays() == 0 || day.Equal(ev.EndDate) {
		parts = append(parts, ev.EndTime.String())
	}
	e.Time = strings.Join(parts, "-")
	return e
}
