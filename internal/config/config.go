// Package config loads the ingestion service configuration from an
// optional YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration consumed by the ingestion core.
type Config struct {
	DatabaseURL   string `mapstructure:"database_url"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`

	Chains          []string `mapstructure:"chains"`
	PrimaryProvider string   `mapstructure:"primary_provider"`
	AlchemyAPIKey   string   `mapstructure:"alchemy_api_key"`
	MoralisAPIKey   string   `mapstructure:"moralis_api_key"`

	StreamLagSeconds    int     `mapstructure:"stream_lag_seconds"`
	BackfillWindowHours int     `mapstructure:"backfill_window_hours"`
	RetryMaxAttempts    int     `mapstructure:"retry_max_attempts"`
	RetryBaseSeconds    float64 `mapstructure:"retry_base_seconds"`
	RetryMaxSeconds     float64 `mapstructure:"retry_max_seconds"`
	RateLimitPerSec     int     `mapstructure:"rate_limit_per_sec"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads configuration from configPath (optional) with environment
// variables taking precedence (DATABASE_URL, CHAINS, PRIMARY_PROVIDER, ...).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("database_url", "")
	v.SetDefault("clickhouse_dsn", "")
	v.SetDefault("chains", "ethereum")
	v.SetDefault("primary_provider", "alchemy")
	v.SetDefault("alchemy_api_key", "")
	v.SetDefault("moralis_api_key", "")
	v.SetDefault("stream_lag_seconds", 15)
	v.SetDefault("backfill_window_hours", 24)
	v.SetDefault("retry_max_attempts", 8)
	v.SetDefault("retry_base_seconds", 0.5)
	v.SetDefault("retry_max_seconds", 15.0)
	v.SetDefault("rate_limit_per_sec", 10)
	v.SetDefault("metrics_addr", ":9090")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/whale-ingest")
	}

	// Environment variables override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found; defaults plus environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Chains = splitChains(v.GetString("chains"))
	cfg.PrimaryProvider = strings.ToLower(cfg.PrimaryProvider)

	return &cfg, nil
}

// splitChains parses the comma-separated chain list, lowercased.
func splitChains(s string) []string {
	var chains []string
	for _, c := range strings.Split(s, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			chains = append(chains, c)
		}
	}
	return chains
}

// Validate checks the configuration before the orchestrator starts any
// chain task. Both provider credentials are required because the fallback
// must be usable at any moment.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("config: at least one chain is required")
	}
	if c.PrimaryProvider != "alchemy" && c.PrimaryProvider != "moralis" {
		return fmt.Errorf("config: unknown primary provider %q", c.PrimaryProvider)
	}
	if c.AlchemyAPIKey == "" {
		return fmt.Errorf("config: ALCHEMY_API_KEY is required")
	}
	if c.MoralisAPIKey == "" {
		return fmt.Errorf("config: MORALIS_API_KEY is required")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("config: retry_max_attempts must be >= 1")
	}
	if c.RetryBaseSeconds <= 0 || c.RetryMaxSeconds <= 0 {
		return fmt.Errorf("config: retry delays must be positive")
	}
	if c.RateLimitPerSec < 1 {
		return fmt.Errorf("config: rate_limit_per_sec must be >= 1")
	}
	if c.StreamLagSeconds < 0 || c.BackfillWindowHours < 1 {
		return fmt.Errorf("config: invalid backfill window or stream lag")
	}
	return nil
}

// BackfillWindow returns the backfill window as a duration.
func (c *Config) BackfillWindow() time.Duration {
	return time.Duration(c.BackfillWindowHours) * time.Hour
}

// StreamLag returns the stream lag tolerance as a duration.
func (c *Config) StreamLag() time.Duration {
	return time.Duration(c.StreamLagSeconds) * time.Second
}

// RetryBase returns the backoff base delay.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseSeconds * float64(time.Second))
}

// RetryMax returns the backoff delay cap.
func (c *Config) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxSeconds * float64(time.Second))
}
