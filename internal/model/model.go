package model

import (
	"errors"
	"fmt"
	"time"
)

// Well-known SharePoint calendar columns.
const (
	FieldID             = "ID"
	FieldTitle          = "Title"
	FieldEventDate      = "EventDate"
	FieldEndDate        = "EndDate"
	FieldLocation       = "Location"
	FieldDescription    = "Description"
	FieldCategory       = "Category"
	FieldAllDay         = "fAllDayEvent"
	FieldRecurrence     = "fRecurrence"
	FieldRecurrenceData = "RecurrenceData"
	FieldDuration       = "Duration"
)

// CalendarEvent is a single row of a SharePoint calendar or list.
//
// Start and End carry the EventDate / EndDate columns. Every other column
// lives in Fields, keyed by its internal name without the "ows_" prefix.
// Values are string, float64, bool or time.Time.
type CalendarEvent struct {
	Start time.Time
	End   time.Time

	Fields map[string]any
}

// Field returns the raw value of a column. EventDate and EndDate resolve
// to Start and End.
func (e CalendarEvent) Field(name string) (any, bool) {
	switch name {
	case FieldEventDate:
		return e.Start, !e.Start.IsZero()
	case FieldEndDate:
		return e.End, !e.End.IsZero()
	}
	v, ok := e.Fields[name]
	return v, ok
}

// String returns a column rendered as text, or "" when absent.
func (e CalendarEvent) String(name string) string {
	v, ok := e.Field(name)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

func (e CalendarEvent) ID() string    { return e.String(FieldID) }
func (e CalendarEvent) Title() string { return e.String(FieldTitle) }

// AllDay reports whether the fAllDayEvent column is set.
func (e CalendarEvent) AllDay() bool {
	switch v := e.Fields[FieldAllDay].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v == "1" || v == "TRUE" || v == "true"
	}
	return false
}

// Date is a calendar date without time-of-day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeOfDay returns the offset of t from its local midnight.
func TimeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

var ErrInvalidRange = errors.New("invalid date-time range")

// DateTimeRange is the requested begin/end pair of a query, decomposed
// once into date and time-of-day parts. Build it with NewDateTimeRange.
type DateTimeRange struct {
	Begin time.Time
	End   time.Time

	BeginDate Date
	EndDate   Date
	BeginTime time.Duration
	EndTime   time.Duration
}

// NewDateTimeRange validates and decomposes a begin/end pair.
func NewDateTimeRange(begin, end time.Time) (DateTimeRange, error) {
	if begin.IsZero() || end.IsZero() {
		return DateTimeRange{}, fmt.Errorf("%w: begin and end must be set", ErrInvalidRange)
	}
	if end.Before(begin) {
		return DateTimeRange{}, fmt.Errorf("%w: end %s is before begin %s",
			ErrInvalidRange, end.Format(time.RFC3339), begin.Format(time.RFC3339))
	}
	return DateTimeRange{
		Begin:     begin,
		End:       end,
		BeginDate: DateOf(begin),
		EndDate:   DateOf(end),
		BeginTime: TimeOfDay(begin),
		EndTime:   TimeOfDay(end),
	}, nil
}

// IsZero reports whether the range was never set.
func (r DateTimeRange) IsZero() bool {
	return r.Begin.IsZero() && r.End.IsZero()
}
