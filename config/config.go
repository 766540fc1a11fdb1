// Package config loads and validates the trader's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/perptrader/market"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Symbols   []string        `json:"symbols" yaml:"symbols"`
	Exchange  ExchangeConfig  `json:"exchange" yaml:"exchange"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Scale     ScaleConfig     `json:"scale" yaml:"scale"`
	Reconcile ReconcileConfig `json:"reconcile" yaml:"reconcile"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

// ExchangeConfig holds venue endpoints and credentials. The API key is
// usually injected via environment, not committed in the file.
type ExchangeConfig struct {
	RESTURL      string  `json:"rest_url" yaml:"rest_url"`
	StreamURL    string  `json:"stream_url" yaml:"stream_url"`
	APIKey       string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv    string  `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Timeout      string  `json:"timeout" yaml:"timeout"` // e.g. "10s"
	RequestsPerS float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// LedgerConfig tunes the position store.
type LedgerConfig struct {
	QueueSize       int    `json:"queue_size" yaml:"queue_size"`
	PriceStaleness  string `json:"price_staleness" yaml:"price_staleness"`
	VerifyStaleness string `json:"verify_staleness" yaml:"verify_staleness"`
}

// RiskConfig tunes the guard.
type RiskConfig struct {
	MaxLeverage     float64 `json:"max_leverage" yaml:"max_leverage"`
	MarginBuffer    float64 `json:"margin_buffer" yaml:"margin_buffer"`
	EquityStaleness string  `json:"equity_staleness" yaml:"equity_staleness"`
	ReduceDistance  float64 `json:"reduce_distance" yaml:"reduce_distance"`
	ReduceFraction  float64 `json:"reduce_fraction" yaml:"reduce_fraction"`
}

// ScaleConfig tunes the position scaler. Disabled turns scaling off
// entirely.
type ScaleConfig struct {
	Disabled     bool    `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	MinPnLPct    float64 `json:"min_pnl_pct" yaml:"min_pnl_pct"`
	StepFraction float64 `json:"step_fraction" yaml:"step_fraction"`
	MaxUnits     float64 `json:"max_units" yaml:"max_units"`
	ADXPeriod    int     `json:"adx_period" yaml:"adx_period"`
	ADXThreshold float64 `json:"adx_threshold" yaml:"adx_threshold"`
}

// ReconcileConfig tunes the exchange-truth pull.
type ReconcileConfig struct {
	Interval string `json:"interval" yaml:"interval"`
}

// GatewayConfig tunes order submission.
type GatewayConfig struct {
	Timeout string `json:"timeout" yaml:"timeout"`
}

// JournalConfig selects the audit backend.
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // empty disables
}

// ParseDuration converts a duration string, with a fallback for empty.
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// ResolveAPIKey returns the configured key, preferring the environment
// variable when one is named.
func (e ExchangeConfig) ResolveAPIKey() string {
	if e.APIKeyEnv != "" {
		if v := os.Getenv(e.APIKeyEnv); v != "" {
			return v
		}
	}
	return e.APIKey
}

// LoadFromFile loads configuration from a file (YAML first, JSON fallback).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, format chosen by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	for _, sym := range c.Symbols {
		if _, ok := market.Instruments[sym]; !ok {
			return fmt.Errorf("unknown instrument: %s", sym)
		}
	}
	if c.Exchange.RESTURL == "" {
		return fmt.Errorf("exchange.rest_url is required")
	}
	if c.Exchange.StreamURL == "" {
		return fmt.Errorf("exchange.stream_url is required")
	}
	if c.Risk.MaxLeverage <= 0 {
		return fmt.Errorf("risk.max_leverage must be positive")
	}
	if c.Risk.MarginBuffer < 0 || c.Risk.MarginBuffer >= 1 {
		return fmt.Errorf("risk.margin_buffer must be in [0, 1)")
	}
	if c.Risk.ReduceDistance <= 0 {
		return fmt.Errorf("risk.reduce_distance must be positive")
	}
	if c.Risk.ReduceFraction <= 0 || c.Risk.ReduceFraction > 1 {
		return fmt.Errorf("risk.reduce_fraction must be in (0, 1]")
	}
	if !c.Scale.Disabled {
		if c.Scale.MinPnLPct <= 0 {
			return fmt.Errorf("scale.min_pnl_pct must be positive")
		}
		if c.Scale.StepFraction <= 0 || c.Scale.StepFraction > 1 {
			return fmt.Errorf("scale.step_fraction must be in (0, 1]")
		}
		if c.Scale.MaxUnits <= 0 {
			return fmt.Errorf("scale.max_units must be positive")
		}
		if c.Scale.ADXPeriod < 2 {
			return fmt.Errorf("scale.adx_period must be at least 2")
		}
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal.dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for SQLite type")
		}
	case "none", "":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"exchange.timeout", c.Exchange.Timeout},
		{"ledger.price_staleness", c.Ledger.PriceStaleness},
		{"ledger.verify_staleness", c.Ledger.VerifyStaleness},
		{"risk.equity_staleness", c.Risk.EquityStaleness},
		{"reconcile.interval", c.Reconcile.Interval},
		{"gateway.timeout", c.Gateway.Timeout},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Symbols:  []string{"BTC-USDT"},
		Exchange: ExchangeConfig{
			RESTURL:      "https://api.exchange.example.com",
			StreamURL:    "wss://stream.exchange.example.com/private",
			APIKeyEnv:    "PERPTRADER_API_KEY",
			Timeout:      "10s",
			RequestsPerS: 5,
		},
		Ledger: LedgerConfig{
			QueueSize:       1024,
			PriceStaleness:  "5s",
			VerifyStaleness: "30s",
		},
		Risk: RiskConfig{
			MaxLeverage:     10,
			MarginBuffer:    0.10,
			EquityStaleness: "30s",
			ReduceDistance:  0.02,
			ReduceFraction:  0.5,
		},
		Scale: ScaleConfig{
			MinPnLPct:    0.05,
			StepFraction: 0.5,
			MaxUnits:     5,
			ADXPeriod:    14,
			ADXThreshold: 20,
		},
		Reconcile: ReconcileConfig{Interval: "10s"},
		Gateway:   GatewayConfig{Timeout: "5s"},
		Journal:   JournalConfig{Type: "sqlite", DBPath: "./perptrader.db"},
		Metrics:   MetricsConfig{Addr: ":9182"},
	}
}
