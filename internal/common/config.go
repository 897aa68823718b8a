package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Dispatcher   DispatcherConfig   `toml:"dispatcher"`
	Bridge       BridgeConfig       `toml:"bridge"`
	Marketplaces MarketplacesConfig `toml:"marketplaces"`
	Logging      LoggingConfig      `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Root data directory; tenant stores live under <path>/tenants/<id>
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// DispatcherConfig controls the worker pool and retry behavior
type DispatcherConfig struct {
	Concurrency      int    `toml:"concurrency"`        // Number of concurrent workers (default: 4)
	PollInterval     string `toml:"poll_interval"`      // How often idle workers poll for claimable jobs (default: "1s")
	BackoffBase      string `toml:"backoff_base"`       // Base retry delay, doubled per attempt (default: "60s")
	BackoffCap       string `toml:"backoff_cap"`        // Upper bound on retry delay (default: "1h")
	JobExpiry        string `toml:"job_expiry"`         // Job expiry window from creation (default: "1h")
	JanitorSchedule  string `toml:"janitor_schedule"`   // Cron spec for the expiry sweep (default: "@every 1m")
	DefaultMaxRetry  int    `toml:"default_max_retry"`  // Default max_retries for new jobs (default: 3)
	ClaimBatchTenant int    `toml:"claim_batch_tenant"` // Max jobs claimed per tenant per poll round (default: 1)
}

// BridgeConfig controls the plugin bridge (browser extension channel)
type BridgeConfig struct {
	QueueCap        int    `toml:"queue_cap"`         // Max pending requests per tenant (default: 50)
	RequestTimeout  string `toml:"request_timeout"`   // Default plugin request timeout (default: "60s")
	LongPollTimeout string `toml:"long_poll_timeout"` // Max hold time for extension long-polls (default: "30s")
	PollIntervalMs  int    `toml:"poll_interval_ms"`  // Suggested next_poll_interval_ms returned to the extension (default: 2000)
}

// MarketplacesConfig carries per-marketplace rate caps and endpoints
type MarketplacesConfig struct {
	Vinted VintedConfig `toml:"vinted"`
	Ebay   EbayConfig   `toml:"ebay"`
	Etsy   EtsyConfig   `toml:"etsy"`
}

// VintedConfig configures the bridged marketplace (M1)
type VintedConfig struct {
	JobsPerMinute int    `toml:"jobs_per_minute"` // Per-tenant job cap (default: 10)
	BaseURL       string `toml:"base_url"`        // Paths in bridge requests are relative to this
}

// EbayConfig configures direct marketplace A (M2)
type EbayConfig struct {
	CallsPerDay    int    `toml:"calls_per_day"`   // Per-tenant daily API call cap (default: 5000)
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"` // HTTP timeout for direct calls (default: "30s")
}

// EtsyConfig configures direct marketplace B (M3)
type EtsyConfig struct {
	CallsPerDay    int    `toml:"calls_per_day"` // Per-tenant daily API call cap (default: 10000)
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in stoflow.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data",
				ResetOnStartup: false,
			},
		},
		Dispatcher: DispatcherConfig{
			Concurrency:      4,
			PollInterval:     "1s",
			BackoffBase:      "60s",
			BackoffCap:       "1h",
			JobExpiry:        "1h",
			JanitorSchedule:  "@every 1m",
			DefaultMaxRetry:  3,
			ClaimBatchTenant: 1,
		},
		Bridge: BridgeConfig{
			QueueCap:        50,
			RequestTimeout:  "60s",
			LongPollTimeout: "30s",
			PollIntervalMs:  2000,
		},
		Marketplaces: MarketplacesConfig{
			Vinted: VintedConfig{
				JobsPerMinute: 10,
				BaseURL:       "https://www.vinted.fr",
			},
			Ebay: EbayConfig{
				CallsPerDay:    5000,
				BaseURL:        "https://api.ebay.com",
				RequestTimeout: "30s",
			},
			Etsy: EtsyConfig{
				CallsPerDay:    10000,
				BaseURL:        "https://api.etsy.com/v3",
				RequestTimeout: "30s",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each file in order
// (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// ApplyFlagOverrides applies command-line flag values (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyEnvOverrides applies STOFLOW_* environment variables
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("STOFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("STOFLOW_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("STOFLOW_DATA_DIR"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("STOFLOW_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// ParseDuration parses a duration string from config, falling back to a
// default when the value is empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
