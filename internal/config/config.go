package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SiteConfig describes the SharePoint site and list being queried.
type SiteConfig struct {
	// URL is the absolute site URL, e.g. "https://sp.example.com/sites/team".
	URL string `yaml:"url" json:"url"`
	// Version is "2010" or "2013".
	Version string `yaml:"version" json:"version"`
	// List is the list title passed to GetListItems.
	List string `yaml:"list" json:"list"`
	// Query selects the CAML query shape:
	//   - "all" (default): single and expanded recurring events
	//   - "single", "recurring"
	//   - "series": no server-side expansion; recurring masters are
	//     expanded locally
	//   - "list": a plain list restricted to Fields
	Query string `yaml:"query" json:"query"`
	// Fields are the ViewFields requested by "list" queries.
	Fields []string `yaml:"fields,omitempty" json:"fields,omitempty"`
	// TimeoutSeconds bounds each SOAP request.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// CacheConfig selects where the last good SOAP response per query is kept.
type CacheConfig struct {
	// Backend is "disk" (default), "redis" or "none".
	Backend       string `yaml:"backend" json:"backend"`
	Dir           string `yaml:"dir" json:"dir"`
	RedisAddr     string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty" json:"-"`
	RedisDB       int    `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
	TTLMinutes    int    `yaml:"ttl_minutes" json:"ttl_minutes"`
}

// ExportConfig controls the watcher's iCalendar output.
type ExportConfig struct {
	Path string `yaml:"path" json:"path"`
	// HorizonDays limits the export to events starting before now+HorizonDays.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// FormConfig controls scraping of SharePoint edit forms.
type FormConfig struct {
	// DateLayout is the Go layout of the date text box, e.g. "1/2/2006".
	DateLayout string `yaml:"date_layout" json:"date_layout"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone SharePoint date-times are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is the cron schedule of the watch command.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Site   SiteConfig   `yaml:"site" json:"site"`
	Cache  CacheConfig  `yaml:"cache" json:"cache"`
	Export ExportConfig `yaml:"export" json:"export"`
	Form   FormConfig   `yaml:"form" json:"form"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen     = "127.0.0.1:8080"
	defaultTimezone   = "UTC"
	defaultCron       = "*/15 * * * *"
	defaultVersion    = "2013"
	defaultList       = "Calendar"
	defaultQuery      = "all"
	defaultTimeout    = 15
	defaultCacheDir   = "./var/soap-cache"
	defaultTTL        = 60
	defaultExportPath = "./var/upcoming.ics"
	defaultHorizon    = 30
	defaultDateLayout = "1/2/2006"
)

var validQueries = map[string]bool{
	"all": true, "single": true, "recurring": true, "series": true, "list": true,
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		LogLevel:    "info",
		RefreshCron: defaultCron,
		Site: SiteConfig{
			Version:        defaultVersion,
			List:           defaultList,
			Query:          defaultQuery,
			TimeoutSeconds: defaultTimeout,
		},
		Cache: CacheConfig{
			Backend:    "disk",
			Dir:        defaultCacheDir,
			TTLMinutes: defaultTTL,
		},
		Export: ExportConfig{
			Path:        defaultExportPath,
			HorizonDays: defaultHorizon,
		},
		Form: FormConfig{DateLayout: defaultDateLayout},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultCron
	}

	c.Site.URL = strings.TrimRight(strings.TrimSpace(c.Site.URL), "/")
	switch c.Site.Version {
	case "2010", "2013":
	case "14":
		c.Site.Version = "2010"
	default:
		c.Site.Version = defaultVersion
	}
	if c.Site.List == "" {
		c.Site.List = defaultList
	}
	c.Site.Query = strings.ToLower(strings.TrimSpace(c.Site.Query))
	if !validQueries[c.Site.Query] {
		c.Site.Query = defaultQuery
	}
	if c.Site.TimeoutSeconds <= 0 {
		c.Site.TimeoutSeconds = defaultTimeout
	}

	// Unknown backends are kept so Validate can report the typo.
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = "disk"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = defaultCacheDir
	}
	if c.Cache.TTLMinutes <= 0 {
		c.Cache.TTLMinutes = defaultTTL
	}

	if c.Export.Path == "" {
		c.Export.Path = defaultExportPath
	}
	if c.Export.HorizonDays <= 0 {
		c.Export.HorizonDays = defaultHorizon
	}
	if c.Form.DateLayout == "" {
		c.Form.DateLayout = defaultDateLayout
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Site.URL == "" {
		return errors.New("site.url is required")
	}
	if !strings.HasPrefix(c.Site.URL, "http://") && !strings.HasPrefix(c.Site.URL, "https://") {
		return fmt.Errorf("site.url %q must be an absolute http(s) URL", c.Site.URL)
	}
	if c.Site.Query == "list" && len(c.Site.Fields) == 0 {
		return errors.New("site.fields must name at least one column for list queries")
	}
	switch c.Cache.Backend {
	case "disk", "redis", "none":
	default:
		return fmt.Errorf("cache.backend %q must be disk, redis or none", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required for the redis backend")
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file settings with SPCAL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SPCAL_SITE_URL"); v != "" {
		c.Site.URL = v
	}
	if v := os.Getenv("SPCAL_LIST"); v != "" {
		c.Site.List = v
	}
	if v := os.Getenv("SPCAL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("SPCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SPCAL_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("SPCAL_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv("SPCAL_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.RedisDB = n
		}
	}
	user, pass := os.Getenv("SPCAL_BASIC_AUTH_USER"), os.Getenv("SPCAL_BASIC_AUTH_PASSWORD")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
	c.Normalize()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file in the same directory, then rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".spcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
