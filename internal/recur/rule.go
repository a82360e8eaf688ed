// Package recur expands SharePoint recurring series locally.
//
// SharePoint stores a series as one master item whose RecurrenceData
// column holds a small XML rule, for example
//
//	<recurrence><rule><firstDayOfWeek>su</firstDayOfWeek>
//	<repeat><weekly mo="TRUE" we="TRUE" weekFrequency="1" /></repeat>
//	<repeatInstances>10</repeatInstances></rule></recurrence>
//
// ParseRule turns that into an rrule-go rule anchored at the series start.
package recur

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

type recurrenceXML struct {
	Rule struct {
		FirstDayOfWeek string `xml:"firstDayOfWeek"`
		Repeat         struct {
			Patterns []patternXML `xml:",any"`
		} `xml:"repeat"`
		RepeatInstances string `xml:"repeatInstances"`
		WindowEnd       string `xml:"windowEnd"`
		RepeatForever   string `xml:"repeatForever"`
	} `xml:"rule"`
}

type patternXML struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
}

func (p patternXML) attr(name string) string {
	for _, a := range p.Attrs {
		if strings.EqualFold(a.Name.Local, name) {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func (p patternXML) flag(name string) bool {
	return strings.EqualFold(p.attr(name), "TRUE")
}

func (p patternXML) number(name string, def int) int {
	n, err := strconv.Atoi(p.attr(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

var weekdayAttrs = []struct {
	name string
	day  rrule.Weekday
}{
	{"su", rrule.SU}, {"mo", rrule.MO}, {"tu", rrule.TU}, {"we", rrule.WE},
	{"th", rrule.TH}, {"fr", rrule.FR}, {"sa", rrule.SA},
}

var (
	allDays     = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}
	workDays    = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	weekendDays = []rrule.Weekday{rrule.SA, rrule.SU}
)

// days collects the weekday flags of a pattern, including the "day",
// "weekday" and "weekend_day" shorthands.
func (p patternXML) days() []rrule.Weekday {
	switch {
	case p.flag("day"):
		return allDays
	case p.flag("weekday"):
		return workDays
	case p.flag("weekend_day"):
		return weekendDays
	}
	var out []rrule.Weekday
	for _, wd := range weekdayAttrs {
		if p.flag(wd.name) {
			out = append(out, wd.day)
		}
	}
	return out
}

var ordinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "last": -1,
}

// ErrUnsupportedRule is returned for patterns this package cannot map.
var ErrUnsupportedRule = errors.New("recur: unsupported recurrence pattern")

// ParseRule converts RecurrenceData XML into a rule starting at dtstart.
func ParseRule(data string, dtstart time.Time) (*rrule.RRule, error) {
	var rx recurrenceXML
	if err := xml.Unmarshal([]byte(data), &rx); err != nil {
		return nil, fmt.Errorf("recur: bad RecurrenceData: %w", err)
	}
	if len(rx.Rule.Repeat.Patterns) == 0 {
		return nil, fmt.Errorf("%w: empty repeat", ErrUnsupportedRule)
	}

	p := rx.Rule.Repeat.Patterns[0]
	opt := rrule.ROption{Dtstart: dtstart, Interval: 1}

	switch p.XMLName.Local {
	case "daily":
		opt.Freq = rrule.DAILY
		if p.flag("weekday") {
			opt.Byweekday = workDays
		} else {
			opt.Interval = p.number("dayFrequency", 1)
		}
	case "weekly":
		opt.Freq = rrule.WEEKLY
		opt.Interval = p.number("weekFrequency", 1)
		opt.Byweekday = p.days()
	case "monthly":
		opt.Freq = rrule.MONTHLY
		opt.Interval = p.number("monthFrequency", 1)
		opt.Bymonthday = []int{p.number("day", dtstart.Day())}
	case "monthlyByDay":
		opt.Freq = rrule.MONTHLY
		opt.Interval = p.number("monthFrequency", 1)
		if err := byDay(p, &opt); err != nil {
			return nil, err
		}
	case "yearly":
		opt.Freq = rrule.YEARLY
		opt.Interval = p.number("yearFrequency", 1)
		opt.Bymonth = []int{p.number("month", int(dtstart.Month()))}
		opt.Bymonthday = []int{p.number("day", dtstart.Day())}
	case "yearlyByDay":
		opt.Freq = rrule.YEARLY
		opt.Interval = p.number("yearFrequency", 1)
		opt.Bymonth = []int{p.number("month", int(dtstart.Month()))}
		if err := byDay(p, &opt); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRule, p.XMLName.Local)
	}

	if wkst, ok := weekStart(rx.Rule.FirstDayOfWeek); ok {
		opt.Wkst = wkst
	}

	switch {
	case strings.TrimSpace(rx.Rule.RepeatInstances) != "":
		n, err := strconv.Atoi(strings.TrimSpace(rx.Rule.RepeatInstances))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("recur: bad repeatInstances %q", rx.Rule.RepeatInstances)
		}
		opt.Count = n
	case strings.TrimSpace(rx.Rule.WindowEnd) != "":
		until, err := time.Parse(time.RFC3339, strings.TrimSpace(rx.Rule.WindowEnd))
		if err != nil {
			return nil, fmt.Errorf("recur: bad windowEnd %q: %w", rx.Rule.WindowEnd, err)
		}
		opt.Until = until
	}

	return rrule.NewRRule(opt)
}

func byDay(p patternXML, opt *rrule.ROption) error {
	pos, ok := ordinals[strings.ToLower(p.attr("weekdayOfMonth"))]
	if !ok {
		return fmt.Errorf("%w: weekdayOfMonth %q", ErrUnsupportedRule, p.attr("weekdayOfMonth"))
	}
	days := p.days()
	if len(days) == 0 {
		return fmt.Errorf("%w: no weekday selected", ErrUnsupportedRule)
	}
	opt.Byweekday = days
	opt.Bysetpos = []int{pos}
	return nil
}

func weekStart(s string) (rrule.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, wd := range weekdayAttrs {
		if wd.name == s {
			return wd.day, true
		}
	}
	return rrule.MO, false
}
