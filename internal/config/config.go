// Package config holds the typed application configuration: compiled-in
// defaults, an optional YAML file, environment overrides, and runtime
// overrides persisted in the store's app_config table.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration. All fields are plain values, so a
// Config copy is a deep, immutable snapshot.
type Config struct {
	Server       Server       `yaml:"server" json:"server"`
	Storage      Storage      `yaml:"storage" json:"storage"`
	Logging      Logging      `yaml:"logging" json:"logging"`
	Data         Data         `yaml:"data" json:"data"`
	AlphaVantage AlphaVantage `yaml:"alphavantage" json:"alphavantage"`
	Finnhub      Finnhub      `yaml:"finnhub" json:"finnhub"`
	Cache        Cache        `yaml:"cache" json:"cache"`
	AI           AI           `yaml:"ai" json:"ai"`
	UI           UI           `yaml:"ui" json:"ui"`
}

// Server holds network listener configuration.
type Server struct {
	Port              string `yaml:"port" json:"port"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec" json:"request_timeout_sec"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level" json:"level"`
}

// Data selects the active market-data provider.
type Data struct {
	Provider string `yaml:"provider" json:"provider"`
}

// AlphaVantage holds Alpha Vantage credentials and defaults.
type AlphaVantage struct {
	APIKey          string `yaml:"api_key" json:"api_key"`
	DefaultRange    string `yaml:"default_range" json:"default_range"`
	DefaultInterval string `yaml:"default_interval" json:"default_interval"`
	AutoRefreshSec  int    `yaml:"auto_refresh_sec" json:"auto_refresh_sec"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" json:"rate_limit_per_min"`
}

// Finnhub holds Finnhub credentials.
type Finnhub struct {
	APIKey string `yaml:"api_key" json:"api_key"`
}

// Cache holds per-category freshness windows. Historical data has no TTL:
// same-provider entries stay fresh until explicitly cleared.
type Cache struct {
	QuoteTTLSec     int `yaml:"quote_ttl_sec" json:"quote_ttl_sec"`
	IndicatorTTLSec int `yaml:"indicator_ttl_sec" json:"indicator_ttl_sec"`
	HistoryTTLDays  int `yaml:"history_ttl_days" json:"history_ttl_days"`
}

// AIProvider holds credentials for one AI-insight backend (stubbed).
type AIProvider struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Model    string `yaml:"model" json:"model"`
}

// AI groups the AI-insight backends.
type AI struct {
	Deepseek      AIProvider `yaml:"deepseek" json:"deepseek"`
	Qwen          AIProvider `yaml:"qwen" json:"qwen"`
	InsightPrompt string     `yaml:"insight_prompt" json:"insight_prompt"`
}

// UI holds presentation preferences passed through to the frontend.
type UI struct {
	Theme       string `yaml:"theme" json:"theme"`
	ShowAIPanel bool   `yaml:"show_ai_panel" json:"show_ai_panel"`
}

// Default returns the compiled-in configuration schema.
func Default() Config {
	return Config{
		Server:  Server{Port: "8080", RequestTimeoutSec: 30},
		Storage: Storage{SQLitePath: "stockview.db"},
		Logging: Logging{Level: "info"},
		Data:    Data{Provider: "alphavantage"},
		AlphaVantage: AlphaVantage{
			DefaultRange:    "1M",
			DefaultInterval: "daily",
			AutoRefreshSec:  60,
			RateLimitPerMin: 5,
		},
		Cache: Cache{
			QuoteTTLSec:     60,
			IndicatorTTLSec: 300,
			HistoryTTLDays:  365,
		},
		UI: UI{Theme: "light"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at path over the defaults, then
// applies environment variable overrides. A missing file is not an error;
// if path is empty, "config.yaml" is used when present.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.Data.Provider = v
	}
	// API keys are intentionally not copied from the environment here:
	// the environment is a per-call fallback (see AlphaVantageKey and
	// FinnhubKey), so clearing a stored key falls back instead of being
	// shadowed by a stale copy.
}

// AlphaVantageKey resolves the Alpha Vantage credential: configured value
// first, then the ALPHAVANTAGE_API_KEY environment variable.
func (c Config) AlphaVantageKey() string {
	if c.AlphaVantage.APIKey != "" {
		return c.AlphaVantage.APIKey
	}
	return os.Getenv("ALPHAVANTAGE_API_KEY")
}

// FinnhubKey resolves the Finnhub credential: configured value first, then
// the FINNHUB_API_KEY environment variable.
func (c Config) FinnhubKey() string {
	if c.Finnhub.APIKey != "" {
		return c.Finnhub.APIKey
	}
	return os.Getenv("FINNHUB_API_KEY")
}
