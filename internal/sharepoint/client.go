package sharepoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"spcal/internal/cache"
	appLog "spcal/internal/log"
	"spcal/internal/model"
	"spcal/internal/recur"
)

const (
	soapAction     = "http://schemas.microsoft.com/sharepoint/soap/GetListItems"
	defaultTimeout = 15 * time.Second

	// Local expansion window for KindSeries when the query has no After.
	seriesLookback = 30 * 24 * time.Hour
	seriesHorizon  = 365 * 24 * time.Hour
)

// Client calls GetListItems on one SharePoint site.
type Client struct {
	site  Site
	http  *resty.Client
	cache cache.Store
	loc   *time.Location
	now   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithCache stores successful responses and serves them when the site
// cannot be reached.
func WithCache(s cache.Store) Option {
	return func(c *Client) { c.cache = s }
}

// WithLocation sets the zone used for date-times without an offset.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithHTTPClient routes requests through hc, for example one carrying
// NTLM or cookie authentication.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = resty.NewWithClient(hc)
		}
	}
}

// WithClock overrides time.Now for series expansion windows.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient validates site and returns a Client for its Lists service.
func NewClient(site Site, opts ...Option) (*Client, error) {
	if err := site.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		site:  site,
		http:  resty.New().SetTimeout(defaultTimeout),
		cache: cache.Nop{},
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Site returns the validated site.
func (c *Client) Site() Site { return c.site }

// Fetch runs q and returns the parsed rows. A SOAP fault is returned as
// *FaultError. Other failures wrap ErrRequestFailed unless a cached body
// for the same request exists, in which case that body is used.
func (c *Client) Fetch(ctx context.Context, q Query) ([]model.CalendarEvent, error) {
	envelope, err := q.Envelope()
	if err != nil {
		return nil, err
	}
	kind := q.Kind
	if kind == "" {
		kind = KindAll
	}
	endpoint := c.site.Endpoint()
	key := cache.Key(endpoint, envelope)

	appLog.Info("sharepoint fetch start", "list", q.List, "kind", string(kind), "endpoint", endpoint)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", `text/xml; charset="utf-8"`).
		SetHeader("X-Requested-With", "XMLHttpRequest").
		SetHeader("SOAPAction", soapAction).
		SetBody(envelope).
		Post(endpoint)

	var body []byte
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestFailed, ctx.Err())
		}
		body, err = c.fallback(ctx, key, fmt.Errorf("%w: %v", ErrRequestFailed, err))
		if err != nil {
			return nil, err
		}

	case resp.StatusCode() == http.StatusOK:
		body = resp.Body()
		events, perr := c.decode(body, q, kind)
		if perr != nil {
			return nil, perr
		}
		if serr := c.cache.Save(ctx, key, body); serr != nil {
			appLog.Error("sharepoint cache save failed", serr, "list", q.List)
		}
		appLog.Info("sharepoint fetch success", "list", q.List, "events", len(events))
		return events, nil

	default:
		if resp.StatusCode() == http.StatusInternalServerError {
			if fault := parseFault(resp.Body()); fault != nil {
				appLog.Error("sharepoint fault", fault, "list", q.List)
				return nil, fault
			}
		}
		body, err = c.fallback(ctx, key, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Status()))
		if err != nil {
			return nil, err
		}
	}

	return c.decode(body, q, kind)
}

// fallback returns the cached body for key, or cause when there is none.
func (c *Client) fallback(ctx context.Context, key string, cause error) ([]byte, error) {
	body, err := c.cache.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			appLog.Error("sharepoint cache load failed", err)
		}
		return nil, cause
	}
	appLog.Error("sharepoint fetch failed, using cached body", cause)
	return body, nil
}

func (c *Client) decode(body []byte, q Query, kind Kind) ([]model.CalendarEvent, error) {
	events, err := ParseRows(body, kind, c.loc)
	if err != nil {
		return nil, err
	}

	if kind == KindSeries {
		from := q.After
		if from.IsZero() {
			from = c.now().Add(-seriesLookback)
		}
		res, err := recur.Expand(events, recur.Window{From: from, To: from.Add(seriesHorizon)})
		if err != nil {
			return nil, err
		}
		events = res.Events
	}

	if kind.IsCalendar() && !q.After.IsZero() {
		kept := events[:0:0]
		for _, ev := range events {
			if !ev.Start.Before(q.After) {
				kept = append(kept, ev)
			}
		}
		events = kept
	}
	return events, nil
}
