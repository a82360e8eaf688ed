package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spcal/internal/cache"
	"spcal/internal/config"
	appLog "spcal/internal/log"
	"spcal/internal/sharepoint"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	debug      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "spcal",
		Short:         "Query and filter SharePoint calendars",
		Long:          "spcal fetches SharePoint calendar or list items through the Lists.asmx SOAP service and filters them by date range, conflicts and field values.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "./spcal.yaml", "Path to config file")
	pf.StringVar(&g.envFile, "env-file", ".env", "Optional .env file with SPCAL_* overrides")
	pf.BoolVar(&g.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newEventsCmd(g),
		newConflictsCmd(g),
		newFormCmd(g),
		newServeCmd(g),
		newWatchCmd(g),
	)
	return root
}

// app is the wiring every command starts from.
type app struct {
	cfg    *config.Config
	loc    *time.Location
	client *sharepoint.Client
	store  cache.Store
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			appLog.Error("cache close failed", err)
		}
	}
}

// loadConfig reads env file and config, then applies the log level.
func (g *globalFlags) loadConfig() (*config.Config, *time.Location, error) {
	if err := config.LoadEnvFile(g.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", g.configPath, err)
	}

	level, ok := appLog.ParseLevel(cfg.LogLevel)
	if !ok {
		appLog.Warn("unknown log_level; using info", "log_level", cfg.LogLevel)
	}
	if g.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
		loc = time.Local
	}
	return cfg, loc, nil
}

// newApp loads configuration and builds the SharePoint client.
func (g *globalFlags) newApp() (*app, error) {
	cfg, loc, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", g.configPath, err)
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return nil, err
	}

	client, err := sharepoint.NewClient(
		sharepoint.Site{URL: cfg.Site.URL, Version: cfg.Site.Version},
		sharepoint.WithCache(store),
		sharepoint.WithLocation(loc),
		sharepoint.WithTimeout(time.Duration(cfg.Site.TimeoutSeconds)*time.Second),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	appLog.Debug("effective config",
		"site", cfg.Site.URL,
		"version", client.Site().Version,
		"list", cfg.Site.List,
		"query", cfg.Site.Query,
		"timezone", loc.String(),
		"cache", cfg.Cache.Backend,
	)
	return &app{cfg: cfg, loc: loc, client: client, store: store}, nil
}

// query builds the configured GetListItems query, with an optional kind
// override from the command line.
func (a *app) query(kindOverride string) (sharepoint.Query, error) {
	raw := a.cfg.Site.Query
	if kindOverride != "" {
		raw = kindOverride
	}
	kind, err := sharepoint.ParseKind(raw)
	if err != nil {
		return sharepoint.Query{}, err
	}
	return sharepoint.Query{List: a.cfg.Site.List, Kind: kind, Fields: a.cfg.Site.Fields}, nil
}
