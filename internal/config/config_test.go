package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/odoo-graph/internal/errs"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(f)
	require.NoError(t, f.Parse(args))
	return f
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Source)
	assert.InDelta(t, 0.3, cfg.FullRatio, 1e-9)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, "sha256", cfg.Fingerprint)
	assert.Equal(t, 30*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Store.Backoff)
	assert.Equal(t, 3, cfg.Store.Retries)
	assert.True(t, cfg.ExcludeTransient)
	assert.Contains(t, cfg.Exclude, "**/tests/**")
	assert.NotEmpty(t, cfg.DB)
	require.NoError(t, cfg.Validate())
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(`
batch_size = 50
workers = 2
fingerprint = "xxh3"

[store]
retries = 5
timeout = "5s"
`), 0o600))
	t.Setenv("ODOO_GRAPH_WORKERS", "6")
	t.Setenv("ODOO_GRAPH_STORE__RETRIES", "7")

	cfg, err := Load(newFlags(t, "--batch_size=10", "--log.format=json"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.BatchSize, "flag beats file")
	assert.Equal(t, 6, cfg.Workers, "env beats file")
	assert.Equal(t, 7, cfg.Store.Retries, "env beats file")
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "xxh3", cfg.Fingerprint)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(newFlags(t, "--config=missing.toml"))
	var ce *errs.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "config", ce.Key)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	tests := []struct {
		name   string
		mutate func(c *Config)
		key    string
	}{
		{"missing source", func(c *Config) { c.Source = filepath.Join(dir, "nope") }, "source"},
		{"ratio zero", func(c *Config) { c.FullRatio = 0 }, "full_ratio"},
		{"ratio above one", func(c *Config) { c.FullRatio = 1.5 }, "full_ratio"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"no batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"bad algorithm", func(c *Config) { c.Fingerprint = "md5" }, "fingerprint"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad schedule", func(c *Config) { c.Schedule = "every day" }, "schedule"},
		{"missing modules file", func(c *Config) { c.ModulesFile = "missing.yaml" }, "modules_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			var ce *errs.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.key, ce.Key)
			assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
		})
	}
}

func TestPipelineOptions(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg, err := Load(newFlags(t, "--source="+dir, "--project=addons", "--store.backoff=1s"))
	require.NoError(t, err)

	opts := cfg.PipelineOptions()
	assert.Equal(t, "addons", opts.Project)
	assert.Equal(t, time.Second, opts.Backoff)
	assert.True(t, filepath.IsAbs(opts.Root))

	cfg.Project = ""
	assert.NotEqual(t, "", cfg.ProjectName())
}
