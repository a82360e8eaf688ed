// Package watch keeps an iCalendar file of upcoming SharePoint events
// current on a cron schedule.
package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"spcal/internal/export"
	"spcal/internal/filter"
	appLog "spcal/internal/log"
	"spcal/internal/model"
	"spcal/internal/sharepoint"
)

// Fetcher is the part of sharepoint.Client a Job needs.
type Fetcher interface {
	Fetch(ctx context.Context, q sharepoint.Query) ([]model.CalendarEvent, error)
}

// Job fetches one list and rewrites Path with its upcoming events.
type Job struct {
	Fetcher Fetcher
	Query   sharepoint.Query
	Path    string
	// Horizon drops events starting after now+Horizon. Zero keeps all.
	Horizon time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result summarizes one run.
type Result struct {
	Written int
	Changes export.Changes
}

// Run performs one fetch, filter and export cycle.
func (j *Job) Run(ctx context.Context) (Result, error) {
	var res Result
	if j.Path == "" {
		return res, errors.New("watch: export path is empty")
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	at := now()

	events, err := j.Fetcher.Fetch(ctx, j.Query)
	if err != nil {
		return res, fmt.Errorf("watch: fetch: %w", err)
	}

	s := filter.NewSession(events, filter.WithClock(func() time.Time { return at })).AfterToday()
	if j.Horizon > 0 {
		limit := at.Add(j.Horizon)
		s = s.Filter("horizon", func(ev model.CalendarEvent) bool { return !ev.Start.After(limit) })
	}
	upcoming, err := s.Result()
	if err != nil {
		return res, err
	}

	var buf bytes.Buffer
	if err := export.WriteICS(&buf, upcoming, export.Options{List: j.Query.List, Stamp: at}); err != nil {
		return res, err
	}

	before, err := readExisting(j.Path)
	if err != nil {
		appLog.Warn("watch: previous export unreadable; treating as empty", "path", j.Path, "err", err)
	}
	after, err := export.ReadICS(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return res, fmt.Errorf("watch: re-read export: %w", err)
	}

	if err := writeFileAtomic(j.Path, buf.Bytes()); err != nil {
		return res, fmt.Errorf("watch: write %s: %w", j.Path, err)
	}

	res.Written = len(upcoming)
	res.Changes = export.Diff(before, after)
	appLog.Info("watch: export updated",
		"path", j.Path,
		"events", res.Written,
		"added", len(res.Changes.Added),
		"removed", len(res.Changes.Removed),
	)
	return res, nil
}

func readExisting(path string) ([]model.CalendarEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return export.ReadICS(f)
}

// writeFileAtomic writes data to a temp file next to path and renames it.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".spcal-export-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Schedule runs job on spec until ctx is canceled. A failing run is
// logged and retried on the next tick.
func Schedule(ctx context.Context, spec string, job *Job) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := job.Run(ctx); err != nil {
			appLog.Error("watch: run failed", err)
		}
	}); err != nil {
		return fmt.Errorf("watch: bad schedule %q: %w", spec, err)
	}

	appLog.Info("watch: scheduler started", "schedule", spec, "path", job.Path)
	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("watch: scheduler stopped")
	return nil
}
