package sharepoint

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSite_Validate(t *testing.T) {
	tests := []struct {
		in      Site
		want    Site
		wantErr bool
	}{
		{in: Site{URL: "https://sp.example.com/sites/team/"}, want: Site{URL: "https://sp.example.com/sites/team", Version: "2013"}},
		{in: Site{URL: "http://sp", Version: "14"}, want: Site{URL: "http://sp", Version: "2010"}},
		{in: Site{URL: "http://sp", Version: "15"}, want: Site{URL: "http://sp", Version: "2013"}},
		{in: Site{URL: "http://sp", Version: "2016"}, wantErr: true},
		{in: Site{URL: "/sites/team"}, wantErr: true},
		{in: Site{URL: "ftp://sp"}, wantErr: true},
		{in: Site{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in.URL+"|"+tt.in.Version, func(t *testing.T) {
			s := tt.in
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}

	s := Site{URL: "https://sp.example.com/sites/team/"}
	require.NoError(t, s.Validate())
	assert.Equal(t, "https://sp.example.com/sites/team/_vti_bin/Lists.asmx", s.Endpoint())
}

func TestEnvelope_Shapes(t *testing.T) {
	tests := []struct {
		kind    Kind
		has     []string
		hasNot  []string
		needsFn bool
	}{
		{
			kind:   KindSingle,
			has:    []string{"<Eq><FieldRef Name='fRecurrence'/><Value Type='Number'>0</Value></Eq>", "</Query></query>"},
			hasNot: []string{"DateRangesOverlap", "ExpandRecurrence"},
		},
		{
			kind: KindRecurring,
			has: []string{
				"<And><DateRangesOverlap>",
				"<Value Type='Number'>1</Value>",
				"<ExpandRecurrence>TRUE</ExpandRecurrence>",
				"<RecurrenceOrderBy>TRUE</RecurrenceOrderBy>",
				"Scope='RecursiveAll'",
			},
		},
		{
			kind:   KindAll,
			has:    []string{"<Where><DateRangesOverlap>", "<Year/>", "<OrderBy><FieldRef Name='EventDate'/></OrderBy>"},
			hasNot: []string{"fRecurrence"},
		},
		{
			kind:   KindSeries,
			has:    []string{"<ExpandRecurrence>FALSE</ExpandRecurrence>"},
			hasNot: []string{"<Where>"},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			env, err := Query{List: "Calendar", Kind: tt.kind}.Envelope()
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(env, "<soap:Envelope"))
			assert.True(t, strings.HasSuffix(env, "</GetListItems></soap:Body></soap:Envelope>"))
			for _, s := range tt.has {
				assert.Contains(t, env, s)
			}
			for _, s := range tt.hasNot {
				assert.NotContains(t, env, s)
			}
			assert.NoError(t, xml.Unmarshal([]byte(env), new(struct{})), "envelope must be well-formed")
		})
	}
}

func TestEnvelope_ListAndEscaping(t *testing.T) {
	env, err := Query{List: "R&D <Team>", Kind: KindList, Fields: []string{"Title", "Due'Date"}}.Envelope()
	require.NoError(t, err)
	assert.Contains(t, env, "<listName>R&amp;D &lt;Team&gt;</listName>")
	assert.Contains(t, env, "<ViewFields><FieldRef Name='Title'/><FieldRef Name='Due&#39;Date'/></ViewFields>")

	_, err = Query{List: "Tasks", Kind: KindList}.Envelope()
	assert.Error(t, err)
	_, err = Query{Kind: KindAll}.Envelope()
	assert.Error(t, err)
	_, err = Query{List: "Calendar", Kind: "weekly"}.Envelope()
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindAll, k)

	k, err = ParseKind(" Series ")
	require.NoError(t, err)
	assert.Equal(t, KindSeries, k)
	assert.False(t, KindList.IsCalendar())

	_, err = ParseKind("everything")
	assert.Error(t, err)
}

func TestParseRows(t *testing.T) {
	body := []byte(`<listitems xmlns:z="#RowsetSchema"><data>
<z:row ows_ID="7" ows_EventDate="2018-03-01T09:00:00Z" ows_fAllDayEvent="1" ows_Done="boolean;#1" ows_Due="datetime;#2018-03-04 10:00:00" ows_Note="string;#a;#b" ows_RecurrenceID="2018-03-01 09:00:00" ows_Count="12" />
<z:row ows_ID="8" ows_Title="no date" />
</data></listitems>`)

	events, err := ParseRows(body, KindAll, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, 7.0, ev.Fields["ID"])
	assert.Equal(t, ev.Start, ev.End)
	assert.True(t, ev.AllDay())
	assert.Equal(t, true, ev.Fields["Done"])
	assert.Equal(t, time.Date(2018, 3, 4, 10, 0, 0, 0, time.UTC), ev.Fields["Due"])
	assert.Equal(t, "a;#b", ev.Fields["Note"])
	assert.Equal(t, time.Date(2018, 3, 1, 9, 0, 0, 0, time.UTC), ev.Fields["RecurrenceID"])
	assert.Equal(t, "12", ev.Fields["Count"])

	items, err := ParseRows(body, KindList, time.UTC)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = ParseRows([]byte("<html/>"), KindAll, time.UTC)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseRows_NonFiniteNumbersStayText(t *testing.T) {
	body := []byte(`<listitems xmlns:z="#RowsetSchema"><data>
<z:row ows_ID="9" ows_EventDate="2018-03-01 09:00:00" ows_Score="float;#NaN" ows_Weight="number;#+Inf" ows_Duration="-Inf" ows_Rank="float;#2.5" />
</data></listitems>`)

	events, err := ParseRows(body, KindAll, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "NaN", ev.Fields["Score"])
	assert.Equal(t, "+Inf", ev.Fields["Weight"])
	assert.Equal(t, "-Inf", ev.Fields["Duration"])
	assert.Equal(t, 2.5, ev.Fields["Rank"])
}

func TestParseDateTime(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)

	got, err := ParseDateTime("2018-03-01 09:00:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 3, 1, 9, 0, 0, 0, loc), got)

	got, err = ParseDateTime("2018-03-01T09:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2018, 3, 1, 9, 0, 0, 0, time.UTC)))

	_, err = ParseDateTime("", loc)
	assert.Error(t, err)
	_, err = ParseDateTime("03/01/2018", loc)
	assert.Error(t, err)
}

func TestParseFault_NoFault(t *testing.T) {
	assert.Nil(t, parseFault([]byte(listResponse)))
	assert.Nil(t, parseFault([]byte("Internal Server Error")))
}
