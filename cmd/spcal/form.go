package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spcal/internal/filter"
	"spcal/internal/form"
	appLog "spcal/internal/log"
	"spcal/internal/model"
)

// formFlags selects a SharePoint form as the source of the query range.
type formFlags struct {
	file   string
	url    string
	row1   int
	row2   int
	layout string
}

func (f *formFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.file, "form-file", "", "Read the range from a saved form HTML file (- for stdin)")
	fl.StringVar(&f.url, "form-url", "", "Read the range from a live form rendered in headless Chromium")
	fl.IntVar(&f.row1, "row1", 0, "Position of the begin date field on the form")
	fl.IntVar(&f.row2, "row2", 1, "Position of the end date field on the form")
	fl.StringVar(&f.layout, "date-layout", "", "Go layout of the form's date text (default from config)")
}

func (f *formFlags) set() bool { return f.file != "" || f.url != "" }

func (f *formFlags) readRange(cmd *cobra.Command, defaultLayout string, loc *time.Location) (model.DateTimeRange, error) {
	layout := f.layout
	if layout == "" {
		layout = defaultLayout
	}
	opts := form.Options{Row1: f.row1, Row2: f.row2, DateLayout: layout, Location: loc}

	var r io.Reader
	switch {
	case f.file == "-":
		r = cmd.InOrStdin()
	case f.file != "":
		file, err := os.Open(f.file)
		if err != nil {
			return model.DateTimeRange{}, err
		}
		defer file.Close()
		r = file
	case f.url != "":
		doc, err := form.Browser{}.Render(cmd.Context(), f.url)
		if err != nil {
			return model.DateTimeRange{}, err
		}
		r = strings.NewReader(doc)
	default:
		return model.DateTimeRange{}, errors.New("one of --form-file or --form-url is required")
	}

	rng, err := form.ParseDateTimes(r, opts)
	if err != nil {
		return model.DateTimeRange{}, err
	}
	appLog.Debug("form range",
		"begin", rng.Begin.Format(time.RFC3339),
		"end", rng.End.Format(time.RFC3339),
	)
	return rng, nil
}

func newFormCmd(g *globalFlags) *cobra.Command {
	f := &formFlags{}
	cmd := &cobra.Command{
		Use:   "form",
		Short: "Print the begin/end date-times of a SharePoint item form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loc, err := g.loadConfig()
			if err != nil {
				return err
			}
			rng, err := f.readRange(cmd, cfg.Form.DateLayout, loc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "begin\t%s\n", rng.Begin.Format(time.RFC3339))
			fmt.Fprintf(out, "end\t%s\n", rng.End.Format(time.RFC3339))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newConflictsCmd(g *globalFlags) *cobra.Command {
	ff := &filterFlags{}
	fm := &formFlags{}
	var failOnConflict bool

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List events that overlap a range given by flags or a form",
		Example: `  spcal conflicts --begin 2018-03-01T09:00 --end 2018-03-01T11:00 --where "Location = Room 2"
  spcal conflicts --form-file newform.html --fail-on-conflict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := ff.request(a.loc)
			if err != nil {
				return err
			}
			req.Match = filter.MatchConflict
			if fm.set() {
				rng, err := fm.readRange(cmd, a.cfg.Form.DateLayout, a.loc)
				if err != nil {
					return err
				}
				req.Range = &rng
			}

			events, err := fetch(cmd, a, ff)
			if err != nil {
				return err
			}
			conflicts, err := filter.Apply(events, req)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, ff, a.cfg.Site.List, conflicts); err != nil {
				return err
			}

			appLog.Info("conflict check finished", "checked", len(events), "conflicts", len(conflicts))
			if failOnConflict && len(conflicts) > 0 {
				return fmt.Errorf("%d conflicting event(s)", len(conflicts))
			}
			return nil
		},
	}
	ff.register(cmd, false)
	fm.register(cmd)
	cmd.Flags().BoolVar(&failOnConflict, "fail-on-conflict", false, "Exit with status 1 when any conflict is found")
	return cmd
}
