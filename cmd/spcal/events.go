package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"spcal/internal/export"
	"spcal/internal/filter"
	"spcal/internal/model"
)

// filterFlags holds the filter pipeline options shared by events and
// conflicts.
type filterFlags struct {
	begin    string
	end      string
	match    string
	where    []string
	upcoming bool
	after    string
	kind     string
	format   string
	output   string
}

func (f *filterFlags) register(cmd *cobra.Command, withMatch bool) {
	fl := cmd.Flags()
	fl.StringVar(&f.begin, "begin", "", "Range begin (RFC 3339 or 2006-01-02T15:04)")
	fl.StringVar(&f.end, "end", "", "Range end (RFC 3339 or 2006-01-02T15:04)")
	if withMatch {
		fl.StringVar(&f.match, "match", "", "Range filter: exact, contains or conflict")
	}
	fl.StringArrayVar(&f.where, "where", nil, `Field predicate "<field> <op> <value>", repeatable`)
	fl.BoolVar(&f.upcoming, "upcoming", false, "Keep only events that have not ended yet")
	fl.StringVar(&f.after, "after", "", "Drop events starting before this date-time at fetch time")
	fl.StringVar(&f.kind, "kind", "", "Query kind override: all, single, recurring, series or list")
	fl.StringVar(&f.format, "format", "table", "Output format: table, json or ics")
	fl.StringVarP(&f.output, "output", "o", "", "Write output to a file instead of stdout")
}

func (f *filterFlags) request(loc *time.Location) (filter.Request, error) {
	var req filter.Request
	var err error
	if f.begin != "" {
		if req.Begin, err = filter.ParseTime(f.begin, loc); err != nil {
			return req, err
		}
	}
	if f.end != "" {
		if req.End, err = filter.ParseTime(f.end, loc); err != nil {
			return req, err
		}
	}
	if req.Match, err = filter.ParseMatch(f.match); err != nil {
		return req, err
	}
	req.Where = f.where
	req.Upcoming = f.upcoming
	return req, nil
}

func newEventsCmd(g *globalFlags) *cobra.Command {
	f := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Fetch events and run the filter pipeline",
		Example: `  spcal events --begin 2018-03-01T09:00 --end 2018-03-01T11:00 --match conflict
  spcal events --where "Category = Meeting" --where "Priority >= 2" --upcoming --format ics -o upcoming.ics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvents(cmd, g, f)
		},
	}
	f.register(cmd, true)
	return cmd
}

func runEvents(cmd *cobra.Command, g *globalFlags, f *filterFlags) error {
	a, err := g.newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := f.request(a.loc)
	if err != nil {
		return err
	}
	events, err := fetch(cmd, a, f)
	if err != nil {
		return err
	}
	filtered, err := filter.Apply(events, req)
	if err != nil {
		return err
	}
	return writeOutput(cmd, f, a.cfg.Site.List, filtered)
}

func fetch(cmd *cobra.Command, a *app, f *filterFlags) ([]model.CalendarEvent, error) {
	q, err := a.query(f.kind)
	if err != nil {
		return nil, err
	}
	if f.after != "" {
		if q.After, err = filter.ParseTime(f.after, a.loc); err != nil {
			return nil, err
		}
	}
	return a.client.Fetch(cmd.Context(), q)
}

func writeOutput(cmd *cobra.Command, f *filterFlags, list string, events []model.CalendarEvent) error {
	w := cmd.OutOrStdout()
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}

	switch strings.ToLower(f.format) {
	case "", "table":
		return writeTable(w, events)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toJSON(events))
	case "ics":
		return export.WriteICS(w, events, export.Options{List: list})
	default:
		return fmt.Errorf("unknown format %q (want table, json or ics)", f.format)
	}
}

type eventJSON struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	AllDay bool           `json:"all_day"`
	Fields map[string]any `json:"fields,omitempty"`
}

func toJSON(events []model.CalendarEvent) []eventJSON {
	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, eventJSON{
			ID:     ev.ID(),
			Title:  ev.Title(),
			Start:  ev.Start,
			End:    ev.End,
			AllDay: ev.AllDay(),
			Fields: ev.Fields,
		})
	}
	return out
}

func writeTable(w io.Writer, events []model.CalendarEvent) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tTITLE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ev.ID(),
			ev.Start.Format("2006-01-02 15:04"),
			ev.End.Format("2006-01-02 15:04"),
			ev.Title(),
		)
	}
	return tw.Flush()
}
