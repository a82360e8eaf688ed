package web

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcal/internal/config"
	"spcal/internal/model"
	"spcal/internal/sharepoint"
)

type fakeFetcher struct {
	events []model.CalendarEvent
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ sharepoint.Query) ([]model.CalendarEvent, error) {
	f.calls++
	return f.events, f.err
}

func ev(id, category string, start, end time.Time) model.CalendarEvent {
	return model.CalendarEvent{
		Start: start,
		End:   end,
		Fields: map[string]any{
			model.FieldID:       id,
			model.FieldTitle:    "Event " + id,
			model.FieldCategory: category,
		},
	}
}

func newTestServer(f Fetcher, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := NewServer(cfg, f, sharepoint.Query{List: "Calendar"}, time.UTC)
	s.now = func() time.Time { return time.Date(2018, 3, 1, 10, 0, 0, 0, time.UTC) }
	return s
}

func day(h, m int) time.Time { return time.Date(2018, 3, 1, h, m, 0, 0, time.UTC) }

func sample() []model.CalendarEvent {
	return []model.CalendarEvent{
		ev("1", "Meeting", day(8, 0), day(9, 0)),
		ev("2", "Meeting", day(9, 30), day(10, 30)),
		ev("3", "Holiday", day(10, 0), day(12, 0)),
		ev("4", "Meeting", day(11, 0), day(12, 0)),
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(&fakeFetcher{}, nil).Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEvents_ConflictAndWhere(t *testing.T) {
	s := newTestServer(&fakeFetcher{events: sample()}, nil)

	v := url.Values{}
	v.Set("begin", "2018-03-01T09:00")
	v.Set("end", "2018-03-01T11:00")
	v.Set("match", "conflict")
	v.Add("where", "Category = Meeting")

	rec := get(t, s.Handler(), "/api/events?"+v.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Calendar", resp.List)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "2", resp.Events[0].ID)
	assert.Equal(t, "Event 2", resp.Events[0].Title)
}

func TestEvents_UpcomingAndCache(t *testing.T) {
	f := &fakeFetcher{events: sample()}
	s := newTestServer(f, nil)

	rec := get(t, s.Handler(), "/api/events?upcoming=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)

	get(t, s.Handler(), "/api/events")
	assert.Equal(t, 1, f.calls, "second request is served from the in-memory cache")
}

type gatedFetcher struct {
	release chan struct{}
	calls   atomic.Int32
}

func (f *gatedFetcher) Fetch(_ context.Context, _ sharepoint.Query) ([]model.CalendarEvent, error) {
	f.calls.Add(1)
	<-f.release
	return sample(), nil
}

func TestEvents_ConcurrentRefreshFetchesOnce(t *testing.T) {
	f := &gatedFetcher{release: make(chan struct{})}
	s := newTestServer(f, nil)
	h := s.Handler()

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = get(t, h, "/api/events").Code
		}(i)
	}
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
}

func TestEvents_UnencodableFieldIsServerError(t *testing.T) {
	events := sample()
	events[0].Fields["Score"] = math.NaN()
	s := newTestServer(&fakeFetcher{events: events}, nil)

	rec := get(t, s.Handler(), "/api/events")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestEvents_ICS(t *testing.T) {
	s := newTestServer(&fakeFetcher{events: sample()}, nil)
	rec := get(t, s.Handler(), "/api/events?format=ics&where=Category+%3D+Holiday")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "UID:3@Calendar")
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
}

func TestEvents_BadRequests(t *testing.T) {
	s := newTestServer(&fakeFetcher{events: sample()}, nil)

	for _, target := range []string{
		"/api/events?match=exact",
		"/api/events?match=nearby",
		"/api/events?begin=yesterday",
		"/api/events?begin=2018-03-01T11:00&end=2018-03-01T09:00&match=conflict",
		"/api/events?where=Category+~+Meeting",
		"/api/events?where=Catgory+%3D+Meeting",
		"/api/events?format=xml",
	} {
		rec := get(t, s.Handler(), target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["error"], target)
	}
}

func TestEvents_FetchFailure(t *testing.T) {
	s := newTestServer(&fakeFetcher{err: errors.New("sharepoint: request failed: 503")}, nil)
	rec := get(t, s.Handler(), "/api/events")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := newTestServer(&fakeFetcher{events: sample()}, cfg).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/api/events")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeFetcher{}, nil).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
