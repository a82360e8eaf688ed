package export

import (
	"errors"
	"io"
	"sort"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "spcal/internal/log"
	"spcal/internal/model"
)

// ReadICS parses a feed written by WriteICS. Each VEVENT becomes a
// CalendarEvent whose ID field holds the UID. Events without a UID are
// skipped.
func ReadICS(r io.Reader) ([]model.CalendarEvent, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, err
	}

	events := make([]model.CalendarEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := fromVEvent(ve)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "err", perr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func fromVEvent(ve *ical.VEvent) (model.CalendarEvent, error) {
	ev := model.CalendarEvent{Fields: map[string]any{}}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.Fields[model.FieldID] = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Fields[model.FieldTitle] = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Fields[model.FieldDescription] = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Fields[model.FieldLocation] = p.Value
	}

	allDay := false
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			allDay = true
		}
		if !strings.Contains(p.Value, "T") {
			allDay = true
		}
	}

	var err error
	if allDay {
		ev.Fields[model.FieldAllDay] = true
		if ev.Start, err = ve.GetAllDayStartAt(); err != nil {
			return ev, err
		}
		if ev.End, err = ve.GetAllDayEndAt(); err != nil {
			ev.End = ev.Start
		}
		return ev, nil
	}

	if ev.Start, err = ve.GetStartAt(); err != nil {
		return ev, err
	}
	if ev.End, err = ve.GetEndAt(); err != nil {
		ev.End = ev.Start
	}
	return ev, nil
}

// Changes lists UIDs that appeared or disappeared between two reads.
type Changes struct {
	Added   []string
	Removed []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool { return len(c.Added) == 0 && len(c.Removed) == 0 }

// Diff compares two event sets by ID.
func Diff(before, after []model.CalendarEvent) Changes {
	old := make(map[string]bool, len(before))
	for _, ev := range before {
		old[ev.ID()] = true
	}
	seen := make(map[string]bool, len(after))

	var c Changes
	for _, ev := range after {
		id := ev.ID()
		seen[id] = true
		if !old[id] {
			c.Added = append(c.Added, id)
		}
	}
	for id := range old {
		if !seen[id] {
			c.Removed = append(c.Removed, id)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	return c
}
