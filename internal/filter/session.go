// Package filter narrows a fetched set of calendar events.
//
// A Session holds the working set, an optional requested date-time range
// and the first error hit while filtering. Sessions are immutable: every
// operation returns a new Session and leaves the receiver untouched, so a
// chain such as
//
//	events, err := filter.NewSession(fetched).
//		SetRange(begin, end).
//		OverlapsRange().
//		WhereExpr("Category = Meeting").
//		Result()
//
// is equivalent to applying each step to the previous result. Once a step
// fails, later steps pass the error along without touching the events.
// Every filter keeps a subset of its input in the original order.
package filter

import (
	"time"

	appLog "spcal/internal/log"
	"spcal/internal/model"
)

// Clock returns the current time. AfterToday reads it once per call.
type Clock func() time.Time

// Option configures a new Session.
type Option func(*Session)

// WithClock replaces time.Now, typically with a fixed instant in tests.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.now = c
		}
	}
}

// Session is one query over a fetched event sequence.
type Session struct {
	events   []model.CalendarEvent
	rng      model.DateTimeRange
	hasRange bool
	now      Clock
	err      error
}

// NewSession starts a session over a copy of events.
func NewSession(events []model.CalendarEvent, opts ...Option) *Session {
	s := &Session{
		events: append([]model.CalendarEvent(nil), events...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) derive() *Session {
	c := *s
	return &c
}

func (s *Session) fail(err error) *Session {
	c := s.derive()
	c.err = err
	return c
}

// SetRange stores the requested begin/end date-times.
func (s *Session) SetRange(begin, end time.Time) *Session {
	if s.err != nil {
		return s
	}
	r, err := model.NewDateTimeRange(begin, end)
	if err != nil {
		return s.fail(err)
	}
	return s.WithRange(r)
}

// WithRange stores a range, such as one scraped from a SharePoint form.
// The range is re-validated and re-decomposed from Begin/End, so a
// hand-built literal behaves the same as one from NewDateTimeRange.
func (s *Session) WithRange(r model.DateTimeRange) *Session {
	if s.err != nil {
		return s
	}
	r, err := model.NewDateTimeRange(r.Begin, r.End)
	if err != nil {
		return s.fail(err)
	}
	c := s.derive()
	c.rng = r
	c.hasRange = true
	return c
}

// Range returns the session's range and whether one is set.
func (s *Session) Range() (model.DateTimeRange, bool) {
	return s.rng, s.hasRange
}

// Events returns a copy of the working set.
func (s *Session) Events() []model.CalendarEvent {
	return append([]model.CalendarEvent(nil), s.events...)
}

func (s *Session) Len() int   { return len(s.events) }
func (s *Session) Err() error { return s.err }

// Result returns the working set, or the first error of the chain.
func (s *Session) Result() ([]model.CalendarEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Events(), nil
}

// Filter keeps the events for which keep returns true. name only labels
// the debug log line.
func (s *Session) Filter(name string, keep func(model.CalendarEvent) bool) *Session {
	if s.err != nil {
		return s
	}
	out := make([]model.CalendarEvent, 0, len(s.events))
	for _, ev := range s.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	appLog.Debug("filter applied", "filter", name, "in", len(s.events), "out", len(out))

	c := s.derive()
	c.events = out
	return c
}

func (s *Session) requireRange(op string) (model.DateTimeRange, error) {
	if !s.hasRange {
		return model.DateTimeRange{}, &MissingRangeError{Op: op}
	}
	return s.rng, nil
}

// ExactDateMatch keeps events that start on the range's begin date and end
// on its end date. Time-of-day is ignored.
func (s *Session) ExactDateMatch() *Session {
	if s.err != nil {
		return s
	}
	r, err := s.requireRange("ExactDateMatch")
	if err != nil {
		return s.fail(err)
	}
	return s.Filter("exact_date", func(ev model.CalendarEvent) bool {
		return model.DateOf(ev.Start) == r.BeginDate && model.DateOf(ev.End) == r.EndDate
	})
}

// ContainsRange keeps events spanning the whole range:
// start <= begin and end >= end.
func (s *Session) ContainsRange() *Session {
	if s.err != nil {
		return s
	}
	r, err := s.requireRange("ContainsRange")
	if err != nil {
		return s.fail(err)
	}
	return s.Filter("contains_range", func(ev model.CalendarEvent) bool {
		return !ev.Start.After(r.Begin) && !ev.End.Before(r.End)
	})
}

// OverlapsRange keeps events that conflict with the range. Intervals that
// only touch at one endpoint do not conflict.
func (s *Session) OverlapsRange() *Session {
	if s.err != nil {
		return s
	}
	r, err := s.requireRange("OverlapsRange")
	if err != nil {
		return s.fail(err)
	}
	return s.Filter("overlaps_range", func(ev model.CalendarEvent) bool {
		return Conflicts(ev.Start, ev.End, r.Begin, r.End)
	})
}

// Conflicts reports whether event [eb, ee] conflicts with request [rb, re].
func Conflicts(eb, ee, rb, re time.Time) bool {
	// request covers the event
	if !rb.After(eb) && !re.Before(ee) {
		return true
	}
	// event starts before and ends inside
	if eb.Before(rb) && ee.After(rb) {
		return true
	}
	// event starts inside and ends after
	if eb.Before(re) && ee.After(re) {
		return true
	}
	// event covers the request
	return rb.Before(eb) && re.After(ee)
}

// Where keeps events whose field compares true against operand.
func (s *Session) Where(field string, op Operator, operand any) *Session {
	if s.err != nil {
		return s
	}
	if !op.Valid() {
		return s.fail(&InvalidOperatorError{Token: op.String()})
	}
	return s.WherePredicate(FieldPredicate{Field: field, Op: op, Operand: operand})
}

// WhereExpr parses "<field> <op> <value>" and applies it.
func (s *Session) WhereExpr(expr string) *Session {
	if s.err != nil {
		return s
	}
	p, err := ParseFieldPredicate(expr)
	if err != nil {
		return s.fail(err)
	}
	return s.WherePredicate(p)
}

// WherePredicate applies p. It fails with InvalidFieldError when the
// working set is non-empty and no event has p.Field; otherwise events
// without the field are dropped.
func (s *Session) WherePredicate(p FieldPredicate) *Session {
	if s.err != nil {
		return s
	}
	if len(s.events) > 0 && !s.anyHasField(p.Field) {
		return s.fail(&InvalidFieldError{Field: p.Field})
	}
	return s.Filter("where "+p.String(), p.Match)
}

func (s *Session) anyHasField(name string) bool {
	for _, ev := range s.events {
		if _, ok := ev.Field(name); ok {
			return true
		}
	}
	return false
}

// AfterToday keeps events that start or end at or after the session
// clock's current time. The result depends on when it is called.
func (s *Session) AfterToday() *Session {
	if s.err != nil {
		return s
	}
	now := s.now()
	return s.Filter("after_today", func(ev model.CalendarEvent) bool {
		return !ev.Start.Before(now) || !ev.End.Before(now)
	})
}
