package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradepilot/tradepilot/lifecycle"
	"github.com/tradepilot/tradepilot/risk"
)

// Config is the full runtime configuration. YAML is the primary format;
// JSON is accepted as a fallback.
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Risk    RiskConfig    `json:"risk" yaml:"risk"`
	Retry   RetryConfig   `json:"retry" yaml:"retry"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Sim     SimConfig     `json:"sim" yaml:"sim"`
}

type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
	Leverage float64 `json:"leverage" yaml:"leverage"`
}

type RiskConfig struct {
	// SafetyFactor scales free margin in the pre-submission margin
	// check; must sit in (0, 1).
	SafetyFactor  float64 `json:"safety_factor" yaml:"safety_factor"`
	MaxOpenTrades int     `json:"max_open_trades" yaml:"max_open_trades"`
	MaxMarginPct  float64 `json:"max_margin_pct" yaml:"max_margin_pct"`
}

type RetryConfig struct {
	MaxAttempts      int    `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay        string `json:"base_delay" yaml:"base_delay"`
	MaxDelay         string `json:"max_delay" yaml:"max_delay"`
	ReconcileTimeout string `json:"reconcile_timeout" yaml:"reconcile_timeout"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	DealsFile  string `json:"deals_file,omitempty" yaml:"deals_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type SimConfig struct {
	Symbol       string  `json:"symbol" yaml:"symbol"`
	InitialBid   float64 `json:"initial_bid" yaml:"initial_bid"`
	InitialAsk   float64 `json:"initial_ask" yaml:"initial_ask"`
	StopOutLevel float64 `json:"stop_out_level" yaml:"stop_out_level"`

	PriceSteps []PriceStep `json:"price_steps,omitempty" yaml:"price_steps,omitempty"`
}

// PriceStep is one quote update in a scripted simulation run.
type PriceStep struct {
	Bid   float64 `json:"bid" yaml:"bid"`
	Ask   float64 `json:"ask" yaml:"ask"`
	Delay string  `json:"delay,omitempty" yaml:"delay,omitempty"` // e.g. "100ms"
}

func (ps PriceStep) ParseDelay() (time.Duration, error) {
	if ps.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(ps.Delay)
}

// LoadFromFile loads configuration, trying YAML then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration; format follows the extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Account.Leverage <= 0 {
		return fmt.Errorf("account.leverage must be positive")
	}
	if c.Risk.SafetyFactor <= 0 || c.Risk.SafetyFactor >= 1 {
		return fmt.Errorf("risk.safety_factor must be between 0 and 1 exclusive")
	}
	if c.Risk.MaxMarginPct < 0 || c.Risk.MaxMarginPct > 1 {
		return fmt.Errorf("risk.max_margin_pct must be between 0 and 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if _, err := c.RetryPolicy(); err != nil {
		return err
	}
	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.DealsFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal deals_file and equity_file required for csv type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	if c.Sim.InitialBid > 0 || c.Sim.InitialAsk > 0 {
		if c.Sim.InitialAsk <= c.Sim.InitialBid {
			return fmt.Errorf("sim initial_ask must be greater than initial_bid")
		}
		if c.Sim.Symbol == "" {
			return fmt.Errorf("sim.symbol is required when initial prices are set")
		}
		for i, ps := range c.Sim.PriceSteps {
			if _, err := ps.ParseDelay(); err != nil {
				return fmt.Errorf("sim.price_steps[%d]: bad delay: %w", i, err)
			}
		}
	}
	return nil
}

// RiskPolicy maps the risk section onto the validator's policy.
func (c *Config) RiskPolicy() risk.Policy {
	return risk.Policy{
		SafetyFactor:  c.Risk.SafetyFactor,
		MaxOpenTrades: c.Risk.MaxOpenTrades,
		MaxMarginPct:  c.Risk.MaxMarginPct,
	}
}

// RetryPolicy maps the retry section onto the lifecycle retry policy.
func (c *Config) RetryPolicy() (lifecycle.RetryPolicy, error) {
	p := lifecycle.RetryPolicy{MaxAttempts: c.Retry.MaxAttempts}
	var err error
	if p.BaseDelay, err = parseDur("retry.base_delay", c.Retry.BaseDelay); err != nil {
		return p, err
	}
	if p.MaxDelay, err = parseDur("retry.max_delay", c.Retry.MaxDelay); err != nil {
		return p, err
	}
	if p.ReconcileTimeout, err = parseDur("retry.reconcile_timeout", c.Retry.ReconcileTimeout); err != nil {
		return p, err
	}
	return p, nil
}

func parseDur(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  100000,
			Leverage: 100,
		},
		Risk: RiskConfig{
			SafetyFactor:  0.8,
			MaxOpenTrades: 0,
			MaxMarginPct:  0,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			BaseDelay:        "100ms",
			MaxDelay:         "2s",
			ReconcileTimeout: "5s",
		},
		Journal: JournalConfig{
			Type:       "csv",
			DealsFile:  "./deals.csv",
			EquityFile: "./equity.csv",
		},
		Sim: SimConfig{
			Symbol:       "EURUSD",
			InitialBid:   1.0849,
			InitialAsk:   1.0851,
			StopOutLevel: 50,
		},
	}
}
