package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Templates  TemplatesConfig  `yaml:"templates" mapstructure:"templates"`
	Fill       FillConfig       `yaml:"fill" mapstructure:"fill"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string     `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig sizes the Postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// TemplateSource points a template id at a location and an edition.
type TemplateSource struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Edition string `yaml:"edition" mapstructure:"edition"`
}

// TemplatesConfig configures where blank form templates come from.
type TemplatesConfig struct {
	Dir         string                    `yaml:"dir" mapstructure:"dir"`
	Sources     map[string]TemplateSource `yaml:"sources" mapstructure:"sources"`
	TimeoutSecs int                       `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int                       `yaml:"max_retries" mapstructure:"max_retries"`
	CacheDir    string                    `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// FillConfig configures fill passes.
type FillConfig struct {
	DefaultEdition string `yaml:"default_edition" mapstructure:"default_edition"`
	Currency       string `yaml:"currency" mapstructure:"currency"`
	Canary         bool   `yaml:"canary" mapstructure:"canary"`
	ReportFormat   string `yaml:"report_format" mapstructure:"report_format"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures zero-fill alerting.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackRuns          int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	ZeroFillRateThreshold float64 `yaml:"zero_fill_rate_threshold" mapstructure:"zero_fill_rate_threshold"`
}

// RetryConfig configures retries of transient failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the remote store circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "pfs.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("templates.dir", "templates")
	v.SetDefault("templates.timeout_secs", 30)
	v.SetDefault("templates.max_retries", 3)
	v.SetDefault("fill.default_edition", "pfs-2023")
	v.SetDefault("fill.currency", "USD")
	v.SetDefault("fill.canary", true)
	v.SetDefault("fill.report_format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_runs", 100)
	v.SetDefault("monitoring.zero_fill_rate_threshold", 0.2)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command needs. Mode is one of "fill", "store",
// "serve" or "batch"; every problem is reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := mode == "store" || mode == "serve"
	if needStore {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				errs = append(errs, "store.sqlite_path is required for the sqlite driver")
			}
		case "fallback":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the fallback driver")
			}
			if c.Store.SQLitePath == "" {
				errs = append(errs, "store.sqlite_path is required for the fallback driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not one of postgres, sqlite, fallback", c.Store.Driver))
		}
	}

	switch mode {
	case "fill", "batch", "serve":
		if c.Fill.DefaultEdition == "" {
			errs = append(errs, "fill.default_edition is required")
		}
		if f := c.Fill.ReportFormat; f != "" && f != "json" && f != "xlsx" {
			errs = append(errs, fmt.Sprintf("fill.report_format %q is not one of json, xlsx", f))
		}
	}

	if mode == "batch" && c.Batch.MaxConcurrent < 1 {
		errs = append(errs, "batch.max_concurrent must be at least 1")
	}
	if mode == "serve" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	for id, src := range c.Templates.Sources {
		if src.URL == "" {
			errs = append(errs, fmt.Sprintf("templates.sources.%s.url is required", id))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
