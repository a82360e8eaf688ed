package recur

import (
	"errors"
	"fmt"
	"sort"
	"time"

	appLog "spcal/internal/log"
	"spcal/internal/model"
)

const defaultMaxPerSeries = 5000

// SharePoint EventType values.
const (
	eventTypeDeleted = 3
	eventTypeChanged = 4
)

// Window bounds local expansion. Occurrences overlapping [From, To] are kept.
type Window struct {
	From time.Time
	To   time.Time

	// MaxPerSeries caps occurrences generated for one master. Zero uses
	// a default.
	MaxPerSeries int
}

// Result holds the expanded events and the IDs of series that hit the cap.
type Result struct {
	Events    []model.CalendarEvent
	Truncated []string
}

// Expand replaces every recurring master in events with its occurrences
// inside w. Exception rows (changed or deleted instances) suppress the
// generated occurrence they replace; changed instances are kept as their
// own rows and deleted ones are dropped. Other events pass through. The
// result is ordered by start time.
func Expand(events []model.CalendarEvent, w Window) (Result, error) {
	var res Result
	if w.To.Before(w.From) {
		return res, errors.New("recur: window ends before it starts")
	}
	if w.MaxPerSeries <= 0 {
		w.MaxPerSeries = defaultMaxPerSeries
	}

	exceptions := collectExceptions(events)
	out := make([]model.CalendarEvent, 0, len(events))

	for _, ev := range events {
		switch {
		case eventType(ev) == eventTypeDeleted:
			continue
		case isMaster(ev):
			occ, hitCap, err := expandSeries(ev, exceptions[ev.ID()], w)
			if err != nil {
				appLog.Error("recur: cannot expand series; keeping master", err, "id", ev.ID())
				out = append(out, ev)
				continue
			}
			if hitCap {
				res.Truncated = append(res.Truncated, ev.ID())
				appLog.Warn("recur: series truncated", "id", ev.ID(), "cap", w.MaxPerSeries)
			}
			out = append(out, occ...)
		default:
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	res.Events = out
	return res, nil
}

func isMaster(ev model.CalendarEvent) bool {
	data, _ := ev.Fields[model.FieldRecurrenceData].(string)
	if data == "" {
		return false
	}
	t := eventType(ev)
	return t != eventTypeChanged && t != eventTypeDeleted && number(ev.Fields[model.FieldRecurrence]) == 1
}

func eventType(ev model.CalendarEvent) int {
	return int(number(ev.Fields["EventType"]))
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case bool:
		if t {
			return 1
		}
	case string:
		var f float64
		if _, err := fmt.Sscan(t, &f); err == nil {
			return f
		}
	}
	return 0
}

// collectExceptions maps master IDs to the RecurrenceID instants that
// have a changed or deleted exception row.
func collectExceptions(events []model.CalendarEvent) map[string]map[int64]bool {
	out := make(map[string]map[int64]bool)
	for _, ev := range events {
		t := eventType(ev)
		if t != eventTypeChanged && t != eventTypeDeleted {
			continue
		}
		master := fmt.Sprint(ev.Fields["MasterSeriesItemID"])
		rid, ok := ev.Fields["RecurrenceID"].(time.Time)
		if !ok {
			continue
		}
		if out[master] == nil {
			out[master] = make(map[int64]bool)
		}
		out[master][rid.Unix()] = true
	}
	return out
}

func expandSeries(master model.CalendarEvent, skip map[int64]bool, w Window) ([]model.CalendarEvent, bool, error) {
	data, _ := master.Fields[model.FieldRecurrenceData].(string)
	rule, err := ParseRule(data, master.Start)
	if err != nil {
		return nil, false, err
	}

	dur := occurrenceDuration(master)
	lo := w.From.Add(-dur)

	// Starts are generated lazily so the cap also bounds the work done.
	next := rule.Iterator()
	var out []model.CalendarEvent
	for {
		start, ok := next()
		if !ok || start.After(w.To) {
			return out, false, nil
		}
		if start.Before(lo) || skip[start.Unix()] {
			continue
		}
		end := start.Add(dur)
		if end.Before(w.From) {
			continue
		}
		if len(out) == w.MaxPerSeries {
			return out, true, nil
		}
		out = append(out, occurrence(master, start, end))
	}
}

// occurrenceDuration prefers the Duration column (seconds). Without it the
// master's EndDate, which marks the end of the whole series, still carries
// the per-instance end time of day.
func occurrenceDuration(master model.CalendarEvent) time.Duration {
	if secs := number(master.Fields[model.FieldDuration]); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if master.AllDay() {
		return 24*time.Hour - time.Minute
	}
	s := master.Start
	e := master.End.In(s.Location())
	end := time.Date(s.Year(), s.Month(), s.Day(), e.Hour(), e.Minute(), e.Second(), 0, s.Location())
	if !end.After(s) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(s)
}

// occurrence copies the master's columns onto one instance, with an ID in
// SharePoint's expanded form "<id>.0.<utc start>".
func occurrence(master model.CalendarEvent, start, end time.Time) model.CalendarEvent {
	fields := make(map[string]any, len(master.Fields)+2)
	for k, v := range master.Fields {
		fields[k] = v
	}
	fields[model.FieldID] = fmt.Sprintf("%s.0.%s", master.ID(), start.UTC().Format("2006-01-02T15:04:05Z"))
	fields["MasterSeriesItemID"] = master.ID()
	fields["RecurrenceID"] = start
	return model.CalendarEvent{Start: start, End: end, Fields: fields}
}
