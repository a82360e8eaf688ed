// Package form reads the begin and end date-times out of a rendered
// SharePoint new/edit item form.
//
// A SharePoint DateTimeField renders as
//
//	<tr>
//	  <td class="ms-dtinput"><input id="..._DateTimeField_DateTimeFieldDate" value="3/1/2018"></td>
//	  <td class="ms-dttimeinput"><select>..9 AM..</select><select>..30..</select></td>
//	</tr>
//
// ParseDateTimes locates the requested fields by position and turns them
// into a model.DateTimeRange for the filter pipeline.
package form

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"spcal/internal/model"
)

const (
	dateInputSuffix = "DateTimeField_DateTimeFieldDate"
	timeInputClass  = "ms-dttimeinput"

	// DefaultDateLayout matches the en-US form format, e.g. "3/1/2018".
	DefaultDateLayout = "1/2/2006"
)

// ErrFieldNotFound is returned when the form has fewer date fields than
// the requested row.
var ErrFieldNotFound = errors.New("form: date-time field not found")

// Options selects which date fields to read and how to interpret them.
type Options struct {
	// Row1 and Row2 are zero-based positions among the form's date
	// fields. Row2 == 0 means 1, so the zero value reads the first two.
	Row1 int
	Row2 int

	DateLayout string
	Location   *time.Location
}

func (o Options) withDefaults() Options {
	if o.Row2 == 0 {
		o.Row2 = 1
	}
	if o.DateLayout == "" {
		o.DateLayout = DefaultDateLayout
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// ParseDateTimes parses an HTML form and returns the range between the
// Row1-th and Row2-th date-time fields. A field without a time part reads
// as midnight.
func ParseDateTimes(r io.Reader, opts Options) (model.DateTimeRange, error) {
	opts = opts.withDefaults()
	if opts.Row1 < 0 || opts.Row2 < 0 {
		return model.DateTimeRange{}, fmt.Errorf("form: negative row index")
	}

	doc, err := html.Parse(r)
	if err != nil {
		return model.DateTimeRange{}, fmt.Errorf("form: parse html: %w", err)
	}

	inputs := findAll(doc, func(n *html.Node) bool {
		return n.Data == "input" && strings.HasSuffix(attr(n, "id"), dateInputSuffix)
	})

	begin, err := readField(inputs, opts.Row1, opts)
	if err != nil {
		return model.DateTimeRange{}, err
	}
	end, err := readField(inputs, opts.Row2, opts)
	if err != nil {
		return model.DateTimeRange{}, err
	}
	return model.NewDateTimeRange(begin, end)
}

func readField(inputs []*html.Node, row int, opts Options) (time.Time, error) {
	if row >= len(inputs) {
		return time.Time{}, fmt.Errorf("%w: row %d (form has %d)", ErrFieldNotFound, row, len(inputs))
	}
	container := inputs[row].Parent
	if container != nil && container.Parent != nil {
		container = container.Parent
	}
	if container == nil {
		return time.Time{}, fmt.Errorf("%w: row %d is detached", ErrFieldNotFound, row)
	}

	var dateText string
	if td := findFirst(container, func(n *html.Node) bool { return n.Data == "td" }); td != nil {
		if in := findFirst(td, func(n *html.Node) bool { return n.Data == "input" }); in != nil {
			dateText = strings.TrimSpace(attr(in, "value"))
		}
	}
	if dateText == "" {
		return time.Time{}, fmt.Errorf("form: row %d has no date value", row)
	}
	day, err := time.ParseInLocation(opts.DateLayout, dateText, opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("form: row %d: %w", row, err)
	}

	timeElem := findFirst(container, func(n *html.Node) bool { return hasClass(n, timeInputClass) })
	if timeElem == nil {
		return day, nil
	}
	selects := findAll(timeElem, func(n *html.Node) bool { return n.Data == "select" })
	if len(selects) < 2 {
		return day, nil
	}
	hourText, minText := selectValue(selects[0]), selectValue(selects[1])
	if hourText == "" || minText == "" {
		return day, nil
	}

	hour, err := ParseHour(hourText)
	if err != nil {
		return time.Time{}, fmt.Errorf("form: row %d: %w", row, err)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(minText))
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("form: row %d: bad minute %q", row, minText)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, opts.Location), nil
}

// ParseHour converts an hour selector value to 0-23. It accepts the
// 12-hour form ("9 AM", "12 PM") and the 24-hour form ("14:", "09").
// "12 AM" is midnight.
func ParseHour(v string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	suffix := ""
	switch {
	case strings.HasSuffix(s, "AM"):
		suffix, s = "AM", strings.TrimSpace(strings.TrimSuffix(s, "AM"))
	case strings.HasSuffix(s, "PM"):
		suffix, s = "PM", strings.TrimSpace(strings.TrimSuffix(s, "PM"))
	}
	s = strings.TrimSuffix(s, ":")

	h, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad hour %q", v)
	}
	switch suffix {
	case "":
		if h < 0 || h > 23 {
			return 0, fmt.Errorf("bad hour %q", v)
		}
		return h, nil
	default:
		if h < 1 || h > 12 {
			return 0, fmt.Errorf("bad hour %q", v)
		}
		if h == 12 {
			h = 0
		}
		if suffix == "PM" {
			h += 12
		}
		return h, nil
	}
}

// selectValue mimics HTMLSelectElement.value: the selected option, else
// the first one; an option without a value attribute yields its text.
func selectValue(sel *html.Node) string {
	options := findAll(sel, func(n *html.Node) bool { return n.Data == "option" })
	if len(options) == 0 {
		return ""
	}
	chosen := options[0]
	for _, o := range options {
		if hasAttr(o, "selected") {
			chosen = o
			break
		}
	}
	if v, ok := lookupAttr(chosen, "value"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(text(chosen))
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
