package sharepoint

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Kind selects one of the fixed GetListItems query shapes.
type Kind string

const (
	// KindAll returns single events and server-expanded recurring events.
	KindAll Kind = "all"
	// KindSingle returns non-recurring events only.
	KindSingle Kind = "single"
	// KindRecurring returns server-expanded recurring events only.
	KindRecurring Kind = "recurring"
	// KindSeries returns every item unexpanded; recurring masters are
	// expanded locally.
	KindSeries Kind = "series"
	// KindList returns plain list items restricted to Query.Fields.
	KindList Kind = "list"
)

// ParseKind maps a config value to a Kind. Empty means KindAll.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAll, nil
	case KindAll, KindSingle, KindRecurring, KindSeries, KindList:
		return k, nil
	}
	return "", fmt.Errorf("sharepoint: unknown query kind %q", s)
}

// IsCalendar reports whether rows carry EventDate/EndDate.
func (k Kind) IsCalendar() bool {
	return k != KindList
}

// Query describes one GetListItems call.
type Query struct {
	List   string
	Kind   Kind
	Fields []string

	// After drops calendar rows whose EventDate is before it. Zero keeps all.
	After time.Time
}

const (
	soapHeader = `<soap:Envelope xmlns:xsi='http://www.w3.org/2001/XMLSchema-instance' xmlns:xsd='http://www.w3.org/2001/XMLSchema' xmlns:soap='http://schemas.xmlsoap.org/soap/envelope/'><soap:Body><GetListItems xmlns='http://schemas.microsoft.com/sharepoint/soap/'>`
	soapFooter = `</GetListItems></soap:Body></soap:Envelope>`

	overlapYear = `<DateRangesOverlap><FieldRef Name='EventDate'/><FieldRef Name='EndDate'/><FieldRef Name='RecurrenceID'/><Value Type='DateTime'><Year/></Value></DateRangesOverlap>`
	orderByDate = `<OrderBy><FieldRef Name='EventDate'/></OrderBy>`
	expandOpts  = `<queryOptions><QueryOptions><RecurrencePatternXMLVersion>v3</RecurrencePatternXMLVersion><ExpandRecurrence>TRUE</ExpandRecurrence><RecurrenceOrderBy>TRUE</RecurrenceOrderBy><ViewAttributes Scope='RecursiveAll'/></QueryOptions></queryOptions>`
	seriesOpts  = `<queryOptions><QueryOptions><RecurrencePatternXMLVersion>v3</RecurrencePatternXMLVersion><ExpandRecurrence>FALSE</ExpandRecurrence><ViewAttributes Scope='RecursiveAll'/></QueryOptions></queryOptions>`
	rowLimitAll = `<rowLimit>0</rowLimit>`

	recurrenceIs = `<Eq><FieldRef Name='fRecurrence'/><Value Type='Number'>%d</Value></Eq>`
)

// Envelope renders the SOAP request body for q.
func (q Query) Envelope() (string, error) {
	if strings.TrimSpace(q.List) == "" {
		return "", fmt.Errorf("sharepoint: list name is empty")
	}
	kind := q.Kind
	if kind == "" {
		kind = KindAll
	}

	var b strings.Builder
	b.WriteString(soapHeader)
	b.WriteString("<listName>")
	b.WriteString(escape(q.List))
	b.WriteString("</listName>")

	switch kind {
	case KindSingle:
		b.WriteString("<query><Query><Where>")
		fmt.Fprintf(&b, recurrenceIs, 0)
		b.WriteString("</Where>" + orderByDate + "</Query></query>")
		b.WriteString(rowLimitAll)
	case KindRecurring:
		b.WriteString("<query><Query><Where><And>" + overlapYear)
		fmt.Fprintf(&b, recurrenceIs, 1)
		b.WriteString("</And></Where>" + orderByDate + "</Query></query>")
		b.WriteString(rowLimitAll + expandOpts)
	case KindAll:
		b.WriteString("<query><Query><Where>" + overlapYear + "</Where>" + orderByDate + "</Query></query>")
		b.WriteString(rowLimitAll + expandOpts)
	case KindSeries:
		b.WriteString("<query><Query>" + orderByDate + "</Query></query>")
		b.WriteString(rowLimitAll + seriesOpts)
	case KindList:
		if len(q.Fields) == 0 {
			return "", fmt.Errorf("sharepoint: list query needs at least one field")
		}
		b.WriteString("<viewFields><ViewFields>")
		for _, f := range q.Fields {
			b.WriteString("<FieldRef Name='")
			b.WriteString(escape(f))
			b.WriteString("'/>")
		}
		b.WriteString("</ViewFields></viewFields>")
		b.WriteString(rowLimitAll)
	default:
		return "", fmt.Errorf("sharepoint: unknown query kind %q", kind)
	}

	b.WriteString(soapFooter)
	return b.String(), nil
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
