package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/catalog-enricher/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	DataDir    string                    `yaml:"data_dir" mapstructure:"data_dir"`
	BackupDir  string                    `yaml:"backup_dir" mapstructure:"backup_dir"`
	Catalog    CatalogConfig             `yaml:"catalog" mapstructure:"catalog"`
	Anthropic  AnthropicConfig           `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich     EnrichConfig              `yaml:"enrich" mapstructure:"enrich"`
	Store      StoreConfig               `yaml:"store" mapstructure:"store"`
	Pricing    map[string]cost.ModelRate `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig                 `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig          `yaml:"monitoring" mapstructure:"monitoring"`
}

// CatalogConfig points at a catalog file. An empty path uses the built-in
// catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AnthropicConfig holds generation service settings.
type AnthropicConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	PrimaryModel  string  `yaml:"primary_model" mapstructure:"primary_model"`
	FallbackModel string  `yaml:"fallback_model" mapstructure:"fallback_model"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EnrichConfig configures retries and pacing of generation calls.
type EnrichConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterFraction    float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	RateLimitMs       int     `yaml:"rate_limit_ms" mapstructure:"rate_limit_ms"`
}

// StoreConfig configures the run log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures run-log health checks. A zero threshold
// disables its alert.
type MonitoringConfig struct {
	Enabled                    bool    `yaml:"enabled" mapstructure:"enabled"`
	LookbackWindowHours        int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	RunFailureRateThreshold    float64 `yaml:"run_failure_rate_threshold" mapstructure:"run_failure_rate_threshold"`
	RecordFailureRateThreshold float64 `yaml:"record_failure_rate_threshold" mapstructure:"record_failure_rate_threshold"`
	CostThresholdUSD           float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	WebhookURL                 string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("anthropic.key", "ENRICH_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind env")
	}

	// Defaults
	v.SetDefault("data_dir", "./data")
	v.SetDefault("backup_dir", "./data/backups")
	v.SetDefault("catalog.path", "")
	v.SetDefault("anthropic.primary_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.fallback_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("enrich.max_attempts", 3)
	v.SetDefault("enrich.initial_backoff_ms", 1000)
	v.SetDefault("enrich.max_backoff_ms", 30000)
	v.SetDefault("enrich.backoff_multiplier", 2.0)
	v.SetDefault("enrich.jitter_fraction", 0.0)
	v.SetDefault("enrich.rate_limit_ms", 1000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "./data/catalog-enricher.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.run_failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.record_failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)
	v.SetDefault("monitoring.webhook_url", "")

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

// Validate reports settings that make an enrichment run impossible.
// Dry runs and read-only commands skip it.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Anthropic.Key) == "" {
		problems = append(problems, "anthropic.key is required (ENRICH_ANTHROPIC_KEY or ANTHROPIC_API_KEY)")
	}
	if c.Anthropic.PrimaryModel == "" {
		problems = append(problems, "anthropic.primary_model is required")
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		problems = append(problems, "anthropic.temperature must be between 0 and 1")
	}
	if c.Enrich.MaxAttempts < 1 {
		problems = append(problems, "enrich.max_attempts must be at least 1")
	}
	if c.Enrich.RateLimitMs < 0 {
		problems = append(problems, "enrich.rate_limit_ms must not be negative")
	}
	switch strings.ToLower(c.Store.Driver) {
	case "", "none", "sqlite", "postgres", "postgresql":
	default:
		problems = append(problems, "store.driver must be sqlite, postgres or none")
	}
	if r := c.Monitoring.RunFailureRateThreshold; r < 0 || r > 1 {
		problems = append(problems, "monitoring.run_failure_rate_threshold must be between 0 and 1")
	}
	if r := c.Monitoring.RecordFailureRateThreshold; r < 0 || r > 1 {
		problems = append(problems, "monitoring.record_failure_rate_threshold must be between 0 and 1")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
