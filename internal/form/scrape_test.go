package form

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcal/internal/model"
)

func dateField(id, date, hourOptions, minOptions string) string {
	row := `<tr><td class="ms-dtinput"><input type="text" id="ctl00_` + id + `_DateTimeField_DateTimeFieldDate" value="` + date + `"></td>`
	if hourOptions != "" {
		row += `<td class="ms-dttimeinput" nowrap><select id="` + id + `Hours">` + hourOptions + `</select>&nbsp;<select id="` + id + `Minutes">` + minOptions + `</select></td>`
	}
	return row + `</tr>`
}

func formHTML(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><form><table class="ms-formtable">`)
	for i, r := range rows {
		b.WriteString(`<tr><td class="ms-formlabel">Field ` + string(rune('A'+i)) + `</td><td class="ms-formbody"><table>`)
		b.WriteString(r)
		b.WriteString(`</table></td></tr>`)
	}
	b.WriteString(`</table></form></body></html>`)
	return b.String()
}

func TestParseDateTimes_TwelveHourForm(t *testing.T) {
	doc := formHTML(
		dateField("StartDate", "3/1/2018",
			`<option value="8 AM">8 AM</option><option selected="selected" value="9 AM">9 AM</option>`,
			`<option value="00">00</option><option selected value="30">30</option>`),
		dateField("EndDate", "3/1/2018",
			`<option value="12 AM">12 AM</option><option selected value="2 PM">2 PM</option>`,
			`<option selected value="15">15</option>`),
	)

	rng, err := ParseDateTimes(strings.NewReader(doc), Options{Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 3, 1, 9, 30, 0, 0, time.UTC), rng.Begin)
	assert.Equal(t, time.Date(2018, 3, 1, 14, 15, 0, 0, time.UTC), rng.End)
	assert.Equal(t, model.Date{Year: 2018, Month: time.March, Day: 1}, rng.BeginDate)
	assert.Equal(t, 9*time.Hour+30*time.Minute, rng.BeginTime)
}

func TestParseDateTimes_RowsAndDefaults(t *testing.T) {
	doc := formHTML(
		dateField("Created", "2/27/2018", "", ""),
		dateField("StartDate", "3/1/2018", `<option>14:</option>`, `<option>05</option>`),
		dateField("EndDate", "3/2/2018", "", ""),
	)

	rng, err := ParseDateTimes(strings.NewReader(doc), Options{Row1: 1, Row2: 2, Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 3, 1, 14, 5, 0, 0, time.UTC), rng.Begin)
	assert.Equal(t, time.Date(2018, 3, 2, 0, 0, 0, 0, time.UTC), rng.End, "missing time reads as midnight")

	rng, err = ParseDateTimes(strings.NewReader(doc), Options{Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 2, 27, 0, 0, 0, 0, time.UTC), rng.Begin)

	_, err = ParseDateTimes(strings.NewReader(doc), Options{Row1: 0, Row2: 5, Location: time.UTC})
	assert.True(t, errors.Is(err, ErrFieldNotFound))
}

func TestParseDateTimes_Errors(t *testing.T) {
	reversed := formHTML(
		dateField("StartDate", "3/2/2018", "", ""),
		dateField("EndDate", "3/1/2018", "", ""),
	)
	_, err := ParseDateTimes(strings.NewReader(reversed), Options{Location: time.UTC})
	assert.True(t, errors.Is(err, model.ErrInvalidRange))

	badDate := formHTML(
		dateField("StartDate", "2018-03-01", "", ""),
		dateField("EndDate", "3/1/2018", "", ""),
	)
	_, err = ParseDateTimes(strings.NewReader(badDate), Options{Location: time.UTC})
	assert.Error(t, err)

	isoLayout := formHTML(
		dateField("StartDate", "2018-03-01", "", ""),
		dateField("EndDate", "2018-03-01", "", ""),
	)
	_, err = ParseDateTimes(strings.NewReader(isoLayout), Options{DateLayout: "2006-01-02", Location: time.UTC})
	assert.NoError(t, err)

	_, err = ParseDateTimes(strings.NewReader("<html></html>"), Options{})
	assert.True(t, errors.Is(err, ErrFieldNotFound))
}

func TestParseHour(t *testing.T) {
	tests := []struct {
		in   string
		want int
		err  bool
	}{
		{in: "12 AM", want: 0},
		{in: "1 AM", want: 1},
		{in: "11 am", want: 11},
		{in: "12 PM", want: 12},
		{in: "2 PM", want: 14},
		{in: "11 PM", want: 23},
		{in: "00:", want: 0},
		{in: "09:", want: 9},
		{in: "23:", want: 23},
		{in: "7", want: 7},
		{in: "13 PM", err: true},
		{in: "0 AM", err: true},
		{in: "24:", err: true},
		{in: "noon", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHour(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBrowser_RequiresURL(t *testing.T) {
	_, err := Browser{}.Render(context.Background(), "")
	assert.Error(t, err)
}
