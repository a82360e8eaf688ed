package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"spcal/internal/config"
	"spcal/internal/export"
	"spcal/internal/filter"
	appLog "spcal/internal/log"
	"spcal/internal/model"
	"spcal/internal/sharepoint"
)

const eventsCacheTTL = 30 * time.Second

// Fetcher is the part of sharepoint.Client the server needs.
type Fetcher interface {
	Fetch(ctx context.Context, q sharepoint.Query) ([]model.CalendarEvent, error)
}

// Server exposes the filter pipeline over HTTP.
type Server struct {
	cfg     *config.Config
	fetcher Fetcher
	query   sharepoint.Query
	loc     *time.Location
	now     func() time.Time
	router  *mux.Router

	// Fetched events are reused for eventsCacheTTL so that repeated
	// filter requests do not each hit SharePoint.
	refreshMu   sync.Mutex
	eventsMu    sync.RWMutex
	eventsCache *eventsCache
}

type eventsCache struct {
	events    []model.CalendarEvent
	updatedAt time.Time
}

// NewServer constructs a Server that answers every request from the list
// described by q.
func NewServer(cfg *config.Config, fetcher Fetcher, q sharepoint.Query, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:     cfg,
		fetcher: fetcher,
		query:   q,
		loc:     loc,
		now:     time.Now,
		router:  mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="spcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	List   string     `json:"list"`
	Count  int        `json:"count"`
	Begin  *time.Time `json:"begin,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Match  string     `json:"match,omitempty"`
	Events []eventDTO `json:"events"`
}

// eventDTO is a JSON-friendly view of a CalendarEvent.
type eventDTO struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	AllDay bool           `json:"all_day"`
	Fields map[string]any `json:"fields"`
}

func toDTO(ev model.CalendarEvent) eventDTO {
	return eventDTO{
		ID:     ev.ID(),
		Title:  ev.Title(),
		Start:  ev.Start,
		End:    ev.End,
		AllDay: ev.AllDay(),
		Fields: ev.Fields,
	}
}

// handleEvents fetches the configured list and runs the filter pipeline.
//
// GET /api/events?begin=2018-03-01T09:00&end=2018-03-01T11:00&match=conflict&where=Category+%3D+Meeting&upcoming=1&format=ics
//   - begin, end: RFC 3339 or 2006-01-02T15:04 in the configured zone
//   - match:      exact | contains | conflict
//   - where:      "<field> <op> <value>", repeatable
//   - upcoming:   1 keeps events that have not ended yet
//   - format:     json (default) | ics
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req, err := s.parseRequest(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := q.Get("format")
	if format != "" && format != "json" && format != "ics" {
		writeError(w, http.StatusBadRequest, "format must be json or ics")
		return
	}

	events, err := s.events(r.Context())
	if err != nil {
		appLog.Error("api events: fetch failed", err, "list", s.query.List)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	filtered, err := filter.Apply(events, req, filter.WithClock(s.now))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appLog.Info("api events request",
		"match", string(req.Match),
		"where", len(req.Where),
		"upcoming", req.Upcoming,
		"in", len(events),
		"out", len(filtered),
	)

	if format == "ics" {
		var buf bytes.Buffer
		if err := export.WriteICS(&buf, filtered, export.Options{List: s.query.List, Stamp: s.now()}); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render calendar")
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}

	resp := eventsResponse{
		List:   s.query.List,
		Count:  len(filtered),
		Match:  string(req.Match),
		Events: make([]eventDTO, 0, len(filtered)),
	}
	if !req.Begin.IsZero() {
		resp.Begin, resp.End = &req.Begin, &req.End
	}
	for _, ev := range filtered {
		resp.Events = append(resp.Events, toDTO(ev))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseRequest(q map[string][]string) (filter.Request, error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var req filter.Request
	var err error
	if v := get("begin"); v != "" {
		if req.Begin, err = filter.ParseTime(v, s.loc); err != nil {
			return req, err
		}
	}
	if v := get("end"); v != "" {
		if req.End, err = filter.ParseTime(v, s.loc); err != nil {
			return req, err
		}
	}
	if req.Match, err = filter.ParseMatch(get("match")); err != nil {
		return req, err
	}
	req.Where = q["where"]
	switch get("upcoming") {
	case "", "0", "false":
	default:
		req.Upcoming = true
	}
	return req, nil
}

// events returns the cached working set or fetches a fresh one.
func (s *Server) events(ctx context.Context) ([]model.CalendarEvent, error) {
	now := s.now()

	if events, ok := s.cachedEvents(now); ok {
		return events, nil
	}

	// One refresh at a time; requests queued behind it reuse its result.
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if events, ok := s.cachedEvents(now); ok {
		return events, nil
	}

	events, err := s.fetcher.Fetch(ctx, s.query)
	if err != nil {
		return nil, err
	}

	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{events: events, updatedAt: now}
	s.eventsMu.Unlock()
	return events, nil
}

func (s *Server) cachedEvents(now time.Time) ([]model.CalendarEvent, bool) {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	ec := s.eventsCache
	if ec == nil || now.Sub(ec.updatedAt) >= eventsCacheTTL {
		return nil, false
	}
	return ec.events, true
}

// writeJSON encodes v before touching the response so an encoding
// failure can still be reported as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		appLog.Error("failed to encode JSON response", err)
		buf.Reset()
		buf.WriteString(`{"error":"failed to encode response"}` + "\n")
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
