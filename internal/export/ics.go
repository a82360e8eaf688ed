// Package export renders a filtered working set as an iCalendar feed and
// reads such feeds back for change detection.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"spcal/internal/model"
)

const productID = "-//spcal//SharePoint calendar export//EN"

// Options controls WriteICS.
type Options struct {
	// List is the source list name; it forms the UID domain part.
	List string
	// Name is the calendar display name. Empty uses List.
	Name string
	// Stamp is the DTSTAMP of every event. Zero uses the current time.
	Stamp time.Time
}

// UID returns the stable iCalendar UID of an event, "<ID>@<list>".
func UID(ev model.CalendarEvent, list string) string {
	id := ev.ID()
	if id == "" {
		id = "start-" + ev.Start.UTC().Format("20060102T150405Z")
	}
	domain := strings.ReplaceAll(strings.TrimSpace(list), " ", "-")
	if domain == "" {
		domain = "sharepoint"
	}
	return id + "@" + domain
}

// Build converts events into a VCALENDAR.
func Build(events []model.CalendarEvent, opts Options) *ical.Calendar {
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	name := opts.Name
	if name == "" {
		name = opts.List
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, ev := range events {
		ve := cal.AddEvent(UID(ev, opts.List))
		ve.SetDtStampTime(stamp.UTC())

		if ev.AllDay() {
			// SharePoint keeps all-day events as 00:00-23:59; DTEND is exclusive.
			ve.SetAllDayStartAt(ev.Start)
			endDay := time.Date(ev.End.Year(), ev.End.Month(), ev.End.Day(), 0, 0, 0, 0, ev.End.Location())
			ve.SetAllDayEndAt(endDay.AddDate(0, 0, 1))
		} else {
			ve.SetStartAt(ev.Start)
			ve.SetEndAt(ev.End)
		}

		if s := ev.Title(); s != "" {
			ve.SetSummary(s)
		}
		if s := ev.String(model.FieldLocation); s != "" {
			ve.SetLocation(s)
		}
		if s := ev.String(model.FieldDescription); s != "" {
			ve.SetDescription(s)
		}
	}
	return cal
}

// WriteICS serializes events to w.
func WriteICS(w io.Writer, events []model.CalendarEvent, opts Options) error {
	if _, err := io.WriteString(w, Build(events, opts).Serialize()); err != nil {
		return fmt.Errorf("export: write ics: %w", err)
	}
	return nil
}
