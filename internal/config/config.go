// Package config loads layered configuration: defaults, an optional TOML
// file, ODOO_GRAPH_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"github.com/DeusData/odoo-graph/internal/changes"
	"github.com/DeusData/odoo-graph/internal/discover"
	"github.com/DeusData/odoo-graph/internal/errs"
	"github.com/DeusData/odoo-graph/internal/pipeline"
	"github.com/DeusData/odoo-graph/internal/store"
)

// DefaultFile is read from the working directory when present.
const DefaultFile = "odoo-graph.toml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: ODOO_GRAPH_STORE__TIMEOUT sets store.timeout.
const EnvPrefix = "ODOO_GRAPH_"

// Store tunes persisted-store calls.
type Store struct {
	Timeout time.Duration `koanf:"timeout"`
	Retries int           `koanf:"retries"`
	Backoff time.Duration `koanf:"backoff"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTP configures the read-only API of serve.
type HTTP struct {
	Addr string `koanf:"addr"`
}

// Config holds all configuration for the application.
type Config struct {
	Source           string   `koanf:"source"`
	ModulesFile      string   `koanf:"modules_file"`
	DB               string   `koanf:"db"`
	Project          string   `koanf:"project"`
	FullRatio        float64  `koanf:"full_ratio"`
	Workers          int      `koanf:"workers"`
	BatchSize        int      `koanf:"batch_size"`
	Fingerprint      string   `koanf:"fingerprint"`
	Exclude          []string `koanf:"exclude"`
	ExcludeTransient bool     `koanf:"exclude_transient"`
	Schedule         string   `koanf:"schedule"`
	Watch            bool     `koanf:"watch"`
	Store            Store    `koanf:"store"`
	Log              Log      `koanf:"log"`
	HTTP             HTTP     `koanf:"http"`
}

func defaults() map[string]any {
	return map[string]any{
		"source":            ".",
		"modules_file":      "",
		"db":                "",
		"project":           "",
		"full_ratio":        changes.DefaultFullRatio,
		"workers":           runtime.NumCPU(),
		"batch_size":        1000,
		"fingerprint":       changes.SHA256,
		"exclude":           discover.DefaultExcludes,
		"exclude_transient": true,
		"schedule":          "",
		"watch":             false,
		"store": map[string]any{
			"timeout": "30s",
			"retries": 3,
			"backoff": "200ms",
		},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"http": map[string]any{
			"addr": "",
		},
	}
}

// Flags registers every configuration key on f.
func Flags(f *pflag.FlagSet) {
	f.String("source", ".", "addons root to scan")
	f.String("modules_file", "", "YAML module list replacing filesystem discovery")
	f.String("db", "", "SQLite database path")
	f.String("project", "", "graph namespace (default: derived from source)")
	f.Float64("full_ratio", changes.DefaultFullRatio, "changed/total ratio above which a run is FULL")
	f.Int("workers", runtime.NumCPU(), "extraction workers")
	f.Int("batch_size", 1000, "max write operations per store batch")
	f.String("fingerprint", changes.SHA256, "fingerprint algorithm (sha256|xxh3)")
	f.StringSlice("exclude", discover.DefaultExcludes, "doublestar exclude patterns")
	f.Bool("exclude_transient", true, "keep transient models out of the graph")
	f.String("schedule", "", "cron expression for periodic runs (serve)")
	f.Bool("watch", false, "poll the source tree for changes (serve)")
	f.Duration("store.timeout", 30*time.Second, "per-call store timeout")
	f.Int("store.retries", 3, "retries for transient store errors")
	f.Duration("store.backoff", 200*time.Millisecond, "initial retry backoff")
	f.String("log.level", "info", "log level (debug|info|warn|error)")
	f.String("log.format", "text", "log format (text|json)")
	f.String("http.addr", "", "HTTP API listen address (serve)")
	f.String("config", "", "configuration file (default: "+DefaultFile+" when present)")
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults. Only flags the user set
// override lower layers.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path, explicit := DefaultFile, false
	if f != nil {
		if p, err := f.GetString("config"); err == nil && p != "" {
			path, explicit = p, true
		}
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NewConfigurationError("config", err.Error())
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errs.NewConfigurationError("config", err.Error())
	}
	if cfg.DB == "" {
		p, err := store.DefaultPath()
		if err != nil {
			return nil, errs.NewConfigurationError("db", err.Error())
		}
		cfg.DB = p
	}
	return &cfg, nil
}

// envKey maps ODOO_GRAPH_STORE__TIMEOUT to store.timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks every value a run depends on.
func (c *Config) Validate() error {
	if c.Source == "" {
		return errs.NewConfigurationError("source", "must be set")
	}
	if info, err := os.Stat(c.Source); err != nil || !info.IsDir() {
		return errs.NewConfigurationError("source", fmt.Sprintf("%q is not a directory", c.Source))
	}
	if c.ModulesFile != "" {
		if _, err := os.Stat(c.ModulesFile); err != nil {
			return errs.NewConfigurationError("modules_file", err.Error())
		}
	}
	if c.FullRatio <= 0 || c.FullRatio > 1 {
		return errs.NewConfigurationError("full_ratio", fmt.Sprintf("%v is outside (0, 1]", c.FullRatio))
	}
	if c.Workers < 1 {
		return errs.NewConfigurationError("workers", "must be at least 1")
	}
	if c.BatchSize < 1 {
		return errs.NewConfigurationError("batch_size", "must be at least 1")
	}
	if !changes.ValidAlgorithm(c.Fingerprint) {
		return errs.NewConfigurationError("fingerprint", fmt.Sprintf("unknown algorithm %q", c.Fingerprint))
	}
	if c.Store.Timeout <= 0 {
		return errs.NewConfigurationError("store.timeout", "must be positive")
	}
	if c.Store.Retries < 0 {
		return errs.NewConfigurationError("store.retries", "must not be negative")
	}
	if c.Store.Backoff < 0 {
		return errs.NewConfigurationError("store.backoff", "must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return errs.NewConfigurationError("log.level", err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errs.NewConfigurationError("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return errs.NewConfigurationError("schedule", err.Error())
		}
	}
	return nil
}

// AbsSource returns the absolute source root.
func (c *Config) AbsSource() string {
	abs, err := filepath.Abs(c.Source)
	if err != nil {
		return c.Source
	}
	return abs
}

// ProjectName returns the configured project or one derived from the source.
func (c *Config) ProjectName() string {
	if c.Project != "" {
		return c.Project
	}
	return pipeline.ProjectNameFromPath(c.AbsSource())
}

// PipelineOptions maps the configuration onto pipeline options.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Root:             c.AbsSource(),
		Project:          c.ProjectName(),
		FullRatio:        c.FullRatio,
		Workers:          c.Workers,
		BatchSize:        c.BatchSize,
		StoreTimeout:     c.Store.Timeout,
		Retries:          c.Store.Retries,
		Backoff:          c.Store.Backoff,
		Algorithm:        c.Fingerprint,
		ExcludeTransient: c.ExcludeTransient,
	}
}

// DiscoverOptions maps the configuration onto discovery options.
func (c *Config) DiscoverOptions() *discover.Options {
	return &discover.Options{Exclude: c.Exclude}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

// SetupLogging installs the configured slog handler as the default logger.
func (c *Config) SetupLogging(w io.Writer) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if c.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// mapProvider serves a map as a koanf provider.
type mapProvider map[string]any

func (p mapProvider) Read() (map[string]any, error) {
	return p, nil
}

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("not implemented")
}
