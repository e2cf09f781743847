package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "pfs.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "pfs-2023", cfg.Fill.DefaultEdition)
	assert.Equal(t, "USD", cfg.Fill.Currency)
	assert.True(t, cfg.Fill.Canary)
	assert.Equal(t, "json", cfg.Fill.ReportFormat)
	assert.Equal(t, 30, cfg.Templates.TimeoutSecs)
	assert.Equal(t, 3, cfg.Templates.MaxRetries)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200, cfg.Retry.InitialBackoffMS)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 100, cfg.Monitoring.LookbackRuns)
	assert.InDelta(t, 0.2, cfg.Monitoring.ZeroFillRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/pfs
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent: 8
templates:
  sources:
    sba-413:
      url: https://forms.example.com/sba-413.pdf
      edition: pfs-2024
fill:
  canary: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/pfs", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrent)
	assert.False(t, cfg.Fill.Canary)
	require.Contains(t, cfg.Templates.Sources, "sba-413")
	assert.Equal(t, "pfs-2024", cfg.Templates.Sources["sba-413"].Edition)
	// Defaults still apply for unset values
	assert.Equal(t, "pfs-2023", cfg.Fill.DefaultEdition)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PFS_STORE_DRIVER", "postgres")
	t.Setenv("PFS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PFS_SERVER_PORT", "3000")
	t.Setenv("PFS_FILL_DEFAULT_EDITION", "pfs-2024")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "pfs-2024", cfg.Fill.DefaultEdition)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0644))

	_, err := Load()
	assert.ErrorContains(t, err, "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "pfs.db"
	cfg.Fill.DefaultEdition = "pfs-2023"
	cfg.Fill.ReportFormat = "json"
	cfg.Batch.MaxConcurrent = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "fill defaults", mode: "fill"},
		{name: "serve defaults", mode: "serve"},
		{name: "batch defaults", mode: "batch"},
		{name: "store defaults", mode: "store"},
		{
			name:    "postgres without url",
			mode:    "store",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: []string{"store.database_url is required"},
		},
		{
			name: "fallback needs both",
			mode: "store",
			mutate: func(c *Config) {
				c.Store.Driver = "fallback"
				c.Store.SQLitePath = ""
			},
			wantErr: []string{"store.database_url is required", "store.sqlite_path is required"},
		},
		{
			name:    "unknown driver",
			mode:    "store",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: []string{`store.driver "mysql"`},
		},
		{
			name:    "fill ignores store",
			mode:    "fill",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: nil,
		},
		{
			name:    "missing edition",
			mode:    "fill",
			mutate:  func(c *Config) { c.Fill.DefaultEdition = "" },
			wantErr: []string{"fill.default_edition is required"},
		},
		{
			name:    "bad report format",
			mode:    "batch",
			mutate:  func(c *Config) { c.Fill.ReportFormat = "csv" },
			wantErr: []string{`fill.report_format "csv"`},
		},
		{
			name:    "batch concurrency",
			mode:    "batch",
			mutate:  func(c *Config) { c.Batch.MaxConcurrent = 0 },
			wantErr: []string{"batch.max_concurrent must be at least 1"},
		},
		{
			name:    "serve port",
			mode:    "serve",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: []string{"server.port 0 is out of range"},
		},
		{
			name: "template without url",
			mode: "fill",
			mutate: func(c *Config) {
				c.Templates.Sources = map[string]TemplateSource{"sba-413": {Edition: "pfs-2023"}}
			},
			wantErr: []string{"templates.sources.sba-413.url is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
