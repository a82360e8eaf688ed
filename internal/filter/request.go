package filter

import (
	"fmt"
	"strings"
	"time"

	"spcal/internal/model"
)

// Match selects the range filter of a Request.
type Match string

const (
	MatchNone     Match = ""
	MatchExact    Match = "exact"
	MatchContains Match = "contains"
	MatchConflict Match = "conflict"
)

// ParseMatch accepts "", "exact", "contains" and "conflict" (alias
// "overlap").
func ParseMatch(s string) (Match, error) {
	switch m := Match(strings.ToLower(strings.TrimSpace(s))); m {
	case MatchNone, MatchExact, MatchContains, MatchConflict:
		return m, nil
	case "overlap":
		return MatchConflict, nil
	}
	return "", fmt.Errorf("filter: unknown match %q (want exact, contains or conflict)", s)
}

// Request is a declarative filter chain as accepted by the CLI and the
// HTTP API. Steps run in a fixed order: range, match, where, upcoming.
type Request struct {
	Begin time.Time
	End   time.Time
	// Range, when set, is used instead of Begin/End.
	Range *model.DateTimeRange

	Match    Match
	Where    []string
	Upcoming bool
}

// Apply runs req over events.
func Apply(events []model.CalendarEvent, req Request, opts ...Option) ([]model.CalendarEvent, error) {
	s := NewSession(events, opts...)

	switch {
	case req.Range != nil:
		s = s.WithRange(*req.Range)
	case !req.Begin.IsZero() || !req.End.IsZero():
		s = s.SetRange(req.Begin, req.End)
	}

	switch req.Match {
	case MatchNone:
	case MatchExact:
		s = s.ExactDateMatch()
	case MatchContains:
		s = s.ContainsRange()
	case MatchConflict:
		s = s.OverlapsRange()
	default:
		return nil, fmt.Errorf("filter: unknown match %q", req.Match)
	}

	for _, expr := range req.Where {
		s = s.WhereExpr(expr)
	}
	if req.Upcoming {
		s = s.AfterToday()
	}
	return s.Result()
}

var timeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime reads a user-supplied date-time: RFC 3339, or one of the
// zone-less forms "2006-01-02T15:04", "2006-01-02 15:04[:05]" and
// "2006-01-02" in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("filter: cannot parse date-time %q", s)
}
