package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Secrets may be placed in
// the file for development but environment variables always override them.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode                  string `yaml:"mode"`   // MOCK or REAL
		Symbol                string `yaml:"symbol"` // e.g. BONKUSDT
		QuoteAsset            string `yaml:"quote_asset"`
		OrderAmountUSDT       string `yaml:"order_amount_usdt"`
		OrderBookDepth        int    `yaml:"order_book_depth"`
		MinProfitMargin       string `yaml:"min_profit_margin"`
		DecimalPrecision      int32  `yaml:"decimal_precision"`
		CooldownPeriodSec     int    `yaml:"cooldown_period_sec"`
		SafetyProfitThreshold string `yaml:"safety_profit_threshold"`
		TradeFeePercent       string `yaml:"trade_fee_percent"`
		ShortWindow           int    `yaml:"short_window"`
		LongWindow            int    `yaml:"long_window"`
		SpreadTolerance       string `yaml:"spread_tolerance"`
		OrderTimeoutSec       int    `yaml:"order_timeout_sec"`
		TimerIntervalSec      int    `yaml:"timer_interval_sec"`
	} `yaml:"trading"`

	API struct {
		Binance struct {
			RestURL      string `yaml:"rest_url"`
			WSURL        string `yaml:"ws_url"`
			APIKey       string `yaml:"api_key"`
			SecretKey    string `yaml:"secret_key"`
			RecvWindowMS int    `yaml:"recv_window_ms"`
		} `yaml:"binance"`
	} `yaml:"api"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and validates the config file, then applies environment
// overrides for secrets.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	overrideWithEnv(&cfg)

	// Public market data flows in every mode; default to mainnet endpoints.
	if cfg.API.Binance.RestURL == "" {
		cfg.API.Binance.RestURL = "https://api.binance.com"
	}
	if cfg.API.Binance.WSURL == "" {
		cfg.API.Binance.WSURL = "wss://stream.binance.com:9443"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv applies environment variables over the file. Secrets
// belong in the environment (or a .env file), never committed to yaml.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("BINANCE_API_KEY"); key != "" {
		cfg.API.Binance.APIKey = key
	}
	if secret := os.Getenv("BINANCE_API_SECRET"); secret != "" {
		cfg.API.Binance.SecretKey = secret
	}
	if mode := os.Getenv("TRADING_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
}

// Validate checks the configuration before anything connects.
func (c *Config) Validate() error {
	t := &c.Trading

	mode := strings.ToUpper(t.Mode)
	if mode != "MOCK" && mode != "REAL" {
		return fmt.Errorf("trading.mode must be MOCK or REAL, got %q", t.Mode)
	}
	if t.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if t.QuoteAsset == "" {
		return fmt.Errorf("trading.quote_asset is required")
	}
	if t.OrderBookDepth <= 0 {
		return fmt.Errorf("trading.order_book_depth must be positive")
	}
	if t.DecimalPrecision < 0 || t.DecimalPrecision > 8 {
		return fmt.Errorf("trading.decimal_precision must be in [0,8]")
	}
	if t.ShortWindow <= 0 || t.ShortWindow >= t.LongWindow {
		return fmt.Errorf("trading.short_window must be positive and less than long_window")
	}
	if t.CooldownPeriodSec < 0 || t.OrderTimeoutSec <= 0 || t.TimerIntervalSec <= 0 {
		return fmt.Errorf("trading timers must be positive")
	}

	for name, v := range map[string]string{
		"order_amount_usdt":       t.OrderAmountUSDT,
		"min_profit_margin":       t.MinProfitMargin,
		"safety_profit_threshold": t.SafetyProfitThreshold,
		"trade_fee_percent":       t.TradeFeePercent,
		"spread_tolerance":        t.SpreadTolerance,
	} {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("trading.%s: %w", name, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("trading.%s must not be negative", name)
		}
	}

	fee := decimal.RequireFromString(t.TradeFeePercent)
	if fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("trading.trade_fee_percent must be a fraction below 1")
	}

	if mode == "REAL" {
		if c.API.Binance.RestURL == "" || !strings.HasPrefix(c.API.Binance.RestURL, "https://") {
			return fmt.Errorf("invalid Binance REST URL: %s", c.API.Binance.RestURL)
		}
		if !strings.HasPrefix(c.API.Binance.WSURL, "ws://") && !strings.HasPrefix(c.API.Binance.WSURL, "wss://") {
			return fmt.Errorf("invalid Binance WS URL: %s", c.API.Binance.WSURL)
		}
	}
	return nil
}

// Decimal accessors; call only after Validate.

func (c *Config) OrderAmount() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.OrderAmountUSDT)
}

func (c *Config) MinProfitMargin() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.MinProfitMargin)
}

func (c *Config) SafetyProfitThreshold() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.SafetyProfitThreshold)
}

func (c *Config) TradeFeePercent() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.TradeFeePercent)
}

func (c *Config) SpreadTolerance() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.SpreadTolerance)
}

func (c *Config) CooldownPeriod() time.Duration {
	return time.Duration(c.Trading.CooldownPeriodSec) * time.Second
}

func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Trading.OrderTimeoutSec) * time.Second
}

func (c *Config) TimerInterval() time.Duration {
	return time.Duration(c.Trading.TimerIntervalSec) * time.Second
}
