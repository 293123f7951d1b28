package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Push    PushConfig    `yaml:"push"`
	Notify  NotifyConfig  `yaml:"notify"`
	Store   StoreConfig   `yaml:"store"`
	Market  MarketConfig  `yaml:"market"`
	Ticker  TickerConfig  `yaml:"ticker"`
	Display DisplayConfig `yaml:"display"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PushConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

type WebhookConfig struct {
	URL       string          `yaml:"url"`
	Secret    string          `yaml:"secret"`
	TimeoutMs int             `yaml:"timeout_ms"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

type NotifyConfig struct {
	DefaultDurationMs int `yaml:"default_duration_ms"`
}

type StoreConfig struct {
	Sqlite SqliteConfig `yaml:"sqlite"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type MarketConfig struct {
	Coins                []string        `yaml:"coins"`
	Fetcher              string          `yaml:"fetcher"` // mock/coingecko/coingecko+mock
	MinRequestIntervalMs int             `yaml:"min_request_interval_ms"`
	Mock                 MockConfig      `yaml:"mock"`
	CoinGecko            CoinGeckoConfig `yaml:"coingecko"`
}

type MockConfig struct {
	LatencyMs int     `yaml:"latency_ms"`
	FailRate  float64 `yaml:"fail_rate"`
}

type CoinGeckoConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type TickerConfig struct {
	PeriodSec  int      `yaml:"period_sec"`
	AllowPaths []string `yaml:"allow_paths"`
}

type DisplayConfig struct {
	Locale string `yaml:"locale"`
}

// envOverrides lists the variables that win over the YAML file.
type envOverrides struct {
	Port            int    `envconfig:"PORT"`
	LogLevel        string `envconfig:"LOG_LEVEL"`
	Fetcher         string `envconfig:"FETCHER"`
	CoinGeckoAPIKey string `envconfig:"COINGECKO_API_KEY"`
	WebhookURL      string `envconfig:"WEBHOOK_URL"`
	WebhookSecret   string `envconfig:"WEBHOOK_SECRET"`
	StorePath       string `envconfig:"STORE_PATH"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Push: PushConfig{
			Webhook: WebhookConfig{
				TimeoutMs: 5000,
				RateLimit: RateLimitConfig{PerMinute: 6, Burst: 2},
			},
		},
		Notify: NotifyConfig{DefaultDurationMs: 3000},
		Store: StoreConfig{
			Sqlite: SqliteConfig{Path: "data/dashboard.db"},
		},
		Market: MarketConfig{
			Coins:   []string{"bitcoin", "ethereum", "binancecoin", "cardano", "solana"},
			Fetcher: "mock",
			Mock:    MockConfig{LatencyMs: 1000},
			CoinGecko: CoinGeckoConfig{
				BaseURL:   "https://api.coingecko.com/api/v3",
				TimeoutMs: 10000,
			},
		},
		Ticker: TickerConfig{
			PeriodSec:  30,
			AllowPaths: []string{"/dashboard", "/portfolio"},
		},
		Display: DisplayConfig{Locale: "en-US"},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// skips the file. A .env file in the working directory is loaded when present.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("process env: %w", err)
	}
	if env.Port != 0 {
		if env.Port < 0 || env.Port > 65535 {
			return fmt.Errorf("invalid PORT: %d", env.Port)
		}
		cfg.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.Fetcher != "" {
		cfg.Market.Fetcher = env.Fetcher
	}
	if env.CoinGeckoAPIKey != "" {
		cfg.Market.CoinGecko.APIKey = env.CoinGeckoAPIKey
	}
	if env.WebhookURL != "" {
		cfg.Push.Webhook.URL = env.WebhookURL
	}
	if env.WebhookSecret != "" {
		cfg.Push.Webhook.Secret = env.WebhookSecret
	}
	if env.StorePath != "" {
		cfg.Store.Sqlite.Path = env.StorePath
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Ticker.PeriodSec <= 0 {
		return fmt.Errorf("ticker.period_sec must be positive")
	}
	if len(c.Ticker.AllowPaths) == 0 {
		return fmt.Errorf("ticker.allow_paths is empty")
	}
	if c.Market.MinRequestIntervalMs < 0 {
		return fmt.Errorf("market.min_request_interval_ms must not be negative")
	}
	if c.Market.Mock.FailRate < 0 || c.Market.Mock.FailRate > 1 {
		return fmt.Errorf("market.mock.fail_rate must be within [0,1]")
	}
	switch strings.ToLower(c.Market.Fetcher) {
	case "mock", "coingecko", "coingecko+mock":
	default:
		return fmt.Errorf("unknown market.fetcher: %q", c.Market.Fetcher)
	}
	return nil
}
