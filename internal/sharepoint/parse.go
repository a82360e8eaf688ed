package sharepoint

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	appLog "spcal/internal/log"
	"spcal/internal/model"
)

// ErrMalformedResponse means a 200 response that is not a GetListItems result.
var ErrMalformedResponse = errors.New("sharepoint: malformed GetListItems response")

const attrPrefix = "ows_"

// Columns SharePoint returns as bare numbers without a type prefix.
var numericColumns = map[string]bool{
	model.FieldID:         true,
	model.FieldDuration:   true,
	model.FieldRecurrence: true,
	model.FieldAllDay:     true,
	"EventType":           true,
	"Priority":            true,
}

// Columns holding bare date-times.
var dateColumns = map[string]bool{
	"RecurrenceID": true,
	"Created":      true,
	"Modified":     true,
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateTime parses a SharePoint date-time. Values with a zone (a "Z"
// suffix or numeric offset) keep it; others are read in loc.
func ParseDateTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty date-time")
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", v)
}

// ParseRows decodes every z:row of a GetListItems response into a
// CalendarEvent. For calendar queries rows without a readable EventDate
// are skipped.
func ParseRows(body []byte, kind Kind, loc *time.Location) ([]model.CalendarEvent, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	events := make([]model.CalendarEvent, 0)
	sawResult := false

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "GetListItemsResult", "listitems":
			sawResult = true
			continue
		case "row":
		default:
			continue
		}

		ev, perr := rowToEvent(start.Attr, loc)
		if perr != nil && kind.IsCalendar() {
			appLog.Warn("sharepoint: skipping row", "err", perr, "id", ev.ID())
			continue
		}
		events = append(events, ev)
	}

	if !sawResult {
		return nil, ErrMalformedResponse
	}
	return events, nil
}

func rowToEvent(attrs []xml.Attr, loc *time.Location) (model.CalendarEvent, error) {
	ev := model.CalendarEvent{Fields: make(map[string]any, len(attrs))}
	var dateErr error
	sawStart := false

	for _, a := range attrs {
		name, ok := strings.CutPrefix(a.Name.Local, attrPrefix)
		if !ok || name == "" {
			continue
		}
		switch name {
		case model.FieldEventDate:
			sawStart = true
			t, err := ParseDateTime(stripType(a.Value), loc)
			if err != nil {
				dateErr = fmt.Errorf("EventDate: %w", err)
				continue
			}
			ev.Start = t
		case model.FieldEndDate:
			t, err := ParseDateTime(stripType(a.Value), loc)
			if err != nil {
				dateErr = fmt.Errorf("EndDate: %w", err)
				continue
			}
			ev.End = t
		default:
			ev.Fields[name] = decodeValue(name, a.Value, loc)
		}
	}

	if !sawStart && dateErr == nil {
		dateErr = errors.New("missing EventDate")
	}
	if ev.End.IsZero() {
		ev.End = ev.Start
	}
	return ev, dateErr
}

func stripType(v string) string {
	if _, rest, ok := strings.Cut(v, ";#"); ok {
		return rest
	}
	return v
}

// decodeValue converts typed values such as "float;#2.00000000000000" and
// the known numeric and date columns. Lookup values like "3;#Meeting" stay strings.
func decodeValue(name, raw string, loc *time.Location) any {
	if typ, rest, ok := strings.Cut(raw, ";#"); ok {
		switch typ {
		case "float", "number", "integer":
			if f, ok := parseFinite(rest); ok {
				return f
			}
			return rest
		case "string":
			return rest
		case "boolean":
			return rest == "1" || strings.EqualFold(rest, "true")
		case "datetime":
			if t, err := ParseDateTime(rest, loc); err == nil {
				return t
			}
			return rest
		}
		return raw
	}
	if dateColumns[name] {
		if t, err := ParseDateTime(raw, loc); err == nil {
			return t
		}
	}
	if numericColumns[name] {
		if f, ok := parseFinite(raw); ok {
			return f
		}
	}
	return raw
}

// parseFinite parses a number, rejecting NaN and the infinities so they
// stay as text.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
