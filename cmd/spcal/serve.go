package main

import (
	"time"

	"github.com/spf13/cobra"

	appLog "spcal/internal/log"
	"spcal/internal/watch"
	"spcal/internal/web"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the filter pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				a.cfg.Listen = listen
			}
			q, err := a.query("")
			if err != nil {
				return err
			}
			return web.NewServer(a.cfg, a.client, q, a.loc).ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var (
		once bool
		path string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep an iCalendar file of upcoming events up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if path != "" {
				a.cfg.Export.Path = path
			}
			q, err := a.query("")
			if err != nil {
				return err
			}
			job := &watch.Job{
				Fetcher: a.client,
				Query:   q,
				Path:    a.cfg.Export.Path,
				Horizon: time.Duration(a.cfg.Export.HorizonDays) * 24 * time.Hour,
			}

			// The first cycle runs immediately so the file exists before
			// the first tick.
			if _, err := job.Run(cmd.Context()); err != nil {
				if once {
					return err
				}
				appLog.Error("initial watch cycle failed", err)
			}
			if once {
				return nil
			}
			return watch.Schedule(cmd.Context(), a.cfg.RefreshCron, job)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run one fetch and export cycle and exit")
	cmd.Flags().StringVar(&path, "path", "", "Export file path (overrides config if set)")
	return cmd
}
