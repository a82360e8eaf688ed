package recur

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcal/internal/model"
)

func day(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestParseRule_Patterns(t *testing.T) {
	start := day(2018, time.March, 1, 9, 0) // Thursday

	tests := []struct {
		name string
		data string
		from time.Time
		to   time.Time
		want []time.Time
	}{
		{
			name: "daily every other day, three instances",
			data: `<recurrence><rule><firstDayOfWeek>su</firstDayOfWeek><repeat><daily dayFrequency="2" /></repeat><repeatInstances>3</repeatInstances></rule></recurrence>`,
			from: start, to: day(2018, time.April, 1, 0, 0),
			want: []time.Time{start, day(2018, time.March, 3, 9, 0), day(2018, time.March, 5, 9, 0)},
		},
		{
			name: "weekly monday and thursday until window end",
			data: `<recurrence><rule><repeat><weekly mo="TRUE" th="TRUE" weekFrequency="1" /></repeat><windowEnd>2018-03-08T23:00:00Z</windowEnd></rule></recurrence>`,
			from: start, to: day(2018, time.April, 1, 0, 0),
			want: []time.Time{start, day(2018, time.March, 5, 9, 0), day(2018, time.March, 8, 9, 0)},
		},
		{
			name: "monthly on the 15th",
			data: `<recurrence><rule><repeat><monthly monthFrequency="1" day="15" /></repeat><repeatForever>FALSE</repeatForever></rule></recurrence>`,
			from: start, to: day(2018, time.May, 31, 0, 0),
			want: []time.Time{day(2018, time.March, 15, 9, 0), day(2018, time.April, 15, 9, 0), day(2018, time.May, 15, 9, 0)},
		},
		{
			name: "last friday of the month",
			data: `<recurrence><rule><repeat><monthlyByDay fr="TRUE" weekdayOfMonth="last" monthFrequency="1" /></repeat><repeatInstances>2</repeatInstances></rule></recurrence>`,
			from: start, to: day(2018, time.December, 31, 0, 0),
			want: []time.Time{day(2018, time.March, 30, 9, 0), day(2018, time.April, 27, 9, 0)},
		},
		{
			name: "yearly on july 4th",
			data: `<recurrence><rule><repeat><yearly yearFrequency="1" month="7" day="4" /></repeat><repeatInstances>2</repeatInstances></rule></recurrence>`,
			from: start, to: day(2020, time.December, 31, 0, 0),
			want: []time.Time{day(2018, time.July, 4, 9, 0), day(2019, time.July, 4, 9, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRule(tt.data, start)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Between(tt.from, tt.to, true))
		})
	}
}

func TestParseRule_Errors(t *testing.T) {
	start := day(2018, time.March, 1, 9, 0)

	_, err := ParseRule(`<recurrence><rule><repeat><hourly /></repeat></rule></recurrence>`, start)
	assert.True(t, errors.Is(err, ErrUnsupportedRule))

	_, err = ParseRule(`<recurrence><rule><repeat><monthlyByDay fr="TRUE" weekdayOfMonth="fifth" /></repeat></rule></recurrence>`, start)
	assert.True(t, errors.Is(err, ErrUnsupportedRule))

	_, err = ParseRule(`not xml`, start)
	assert.Error(t, err)
}

func TestExpand_SeriesWithExceptions(t *testing.T) {
	master := model.CalendarEvent{
		Start: day(2018, time.March, 5, 9, 0),  // Monday
		End:   day(2018, time.March, 26, 10, 0), // end of series
		Fields: map[string]any{
			model.FieldID:             float64(12),
			model.FieldTitle:          "Weekly sync",
			model.FieldRecurrence:     float64(1),
			model.FieldRecurrenceData: `<recurrence><rule><repeat><weekly mo="TRUE" weekFrequency="1" /></repeat><repeatInstances>4</repeatInstances></rule></recurrence>`,
			model.FieldDuration:       float64(3600),
		},
	}
	moved := model.CalendarEvent{
		Start: day(2018, time.March, 13, 14, 0),
		End:   day(2018, time.March, 13, 15, 0),
		Fields: map[string]any{
			model.FieldID:        float64(13),
			"EventType":          float64(4),
			"MasterSeriesItemID": "12",
			"RecurrenceID":       day(2018, time.March, 12, 9, 0),
		},
	}
	deleted := model.CalendarEvent{
		Start: day(2018, time.March, 19, 9, 0),
		End:   day(2018, time.March, 19, 10, 0),
		Fields: map[string]any{
			model.FieldID:        float64(14),
			"EventType":          float64(3),
			"MasterSeriesItemID": "12",
			"RecurrenceID":       day(2018, time.March, 19, 9, 0),
		},
	}
	single := model.CalendarEvent{
		Start:  day(2018, time.March, 6, 8, 0),
		End:    day(2018, time.March, 6, 8, 30),
		Fields: map[string]any{model.FieldID: float64(20)},
	}

	res, err := Expand([]model.CalendarEvent{master, moved, deleted, single}, Window{
		From: day(2018, time.March, 1, 0, 0),
		To:   day(2018, time.March, 31, 0, 0),
	})
	require.NoError(t, err)

	var got []string
	for _, ev := range res.Events {
		got = append(got, ev.ID())
	}
	assert.Equal(t, []string{
		"12.0.2018-03-05T09:00:00Z",
		"20",
		"13",
		"12.0.2018-03-26T09:00:00Z",
	}, got)

	first := res.Events[0]
	assert.Equal(t, day(2018, time.March, 5, 10, 0), first.End)
	assert.Equal(t, "Weekly sync", first.Title())
	assert.Equal(t, "12", first.Fields["MasterSeriesItemID"])
	assert.Empty(t, res.Truncated)
}

func TestExpand_CapAndWindow(t *testing.T) {
	master := model.CalendarEvent{
		Start: day(2018, time.January, 1, 23, 0),
		End:   day(2018, time.January, 1, 23, 30),
		Fields: map[string]any{
			model.FieldID:             "7",
			model.FieldRecurrence:     "1",
			model.FieldRecurrenceData: `<recurrence><rule><repeat><daily dayFrequency="1" /></repeat><repeatForever>TRUE</repeatForever></rule></recurrence>`,
		},
	}

	res, err := Expand([]model.CalendarEvent{master}, Window{
		From:         day(2018, time.February, 1, 0, 0),
		To:           day(2018, time.March, 1, 0, 0),
		MaxPerSeries: 10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Events, 10)
	assert.Equal(t, []string{"7"}, res.Truncated)
	// Duration falls back to the master's end time of day.
	assert.Equal(t, 30*time.Minute, res.Events[0].End.Sub(res.Events[0].Start))

	_, err = Expand(nil, Window{From: day(2018, time.March, 1, 0, 0), To: day(2018, time.February, 1, 0, 0)})
	assert.Error(t, err)
}

func TestExpand_CapStopsOpenEndedSeriesEarly(t *testing.T) {
	master := model.CalendarEvent{
		Start: day(2018, time.January, 1, 9, 0),
		End:   day(2018, time.January, 1, 10, 0),
		Fields: map[string]any{
			model.FieldID:             "9",
			model.FieldRecurrence:     "1",
			model.FieldRecurrenceData: `<recurrence><rule><repeat><daily dayFrequency="1" /></repeat><repeatForever>TRUE</repeatForever></rule></recurrence>`,
		},
	}

	res, err := Expand([]model.CalendarEvent{master}, Window{
		From:         day(2018, time.January, 1, 0, 0),
		To:           day(9000, time.January, 1, 0, 0),
		MaxPerSeries: 3,
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.Equal(t, []string{"9"}, res.Truncated)
	assert.Equal(t, day(2018, time.January, 3, 9, 0), res.Events[2].Start)
}
