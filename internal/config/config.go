// Package config loads the tunables of spec §6: liquidation_threshold,
// risk_tick_interval, funding_interval, max_leverage, decimal_scale, plus
// the ambient options every engine deployment needs (queue depth, listen
// addresses, persistence path). Loading follows the layering the examples
// use: a YAML file for the base configuration, then environment variables
// (optionally sourced from a .env file) for anything sensitive or
// per-deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Market struct {
		Symbol     string `yaml:"symbol"`
		BaseAsset  string `yaml:"base_asset"`
		QuoteAsset string `yaml:"quote_asset"`
	} `yaml:"market"`

	Risk struct {
		LiquidationThreshold decimal.Decimal `yaml:"liquidation_threshold"`
		RiskTickInterval     time.Duration   `yaml:"risk_tick_interval"`
		FundingInterval      time.Duration   `yaml:"funding_interval"`
		FundingRate          decimal.Decimal `yaml:"funding_rate"`
	} `yaml:"risk"`

	Engine struct {
		MaxLeverage  int   `yaml:"max_leverage"`
		DecimalScale int32 `yaml:"decimal_scale"`
		QueueDepth   int   `yaml:"queue_depth"`
	} `yaml:"engine"`

	API struct {
		ListenAddr string `yaml:"listen_addr"`
		JWTSecret  string `yaml:"jwt_secret"`
	} `yaml:"api"`

	Persistence struct {
		Enabled bool   `yaml:"enabled"`
		DBPath  string `yaml:"db_path"`
	} `yaml:"persistence"`

	Logging struct {
		Level   string `yaml:"level"`
		LogFile string `yaml:"log_file"`
	} `yaml:"logging"`
}

// Default matches spec §6's stated defaults.
func Default() Config {
	var c Config
	c.Market.Symbol = "PERP-USDC"
	c.Market.BaseAsset = "PERP"
	c.Market.QuoteAsset = "USDC"

	c.Risk.LiquidationThreshold = decimal.New(5, -2)
	c.Risk.RiskTickInterval = 100 * time.Millisecond
	c.Risk.FundingInterval = time.Hour
	c.Risk.FundingRate = decimal.New(1, -4)

	c.Engine.MaxLeverage = 50
	c.Engine.DecimalScale = 8
	c.Engine.QueueDepth = 1024

	c.API.ListenAddr = ":8080"

	c.Persistence.Enabled = false
	c.Persistence.DBPath = "./data/perpetra"

	c.Logging.Level = "info"
	return c
}

// Load reads a YAML file at path (if non-empty and present), then applies
// environment-variable overrides — env vars sourced from a .env file when
// present, then the process environment, taking priority over both the
// YAML file and the compiled-in defaults.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("PERPETRA_LIQUIDATION_THRESHOLD"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Risk.LiquidationThreshold = d
		}
	}
	if v := os.Getenv("PERPETRA_RISK_TICK_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Risk.RiskTickInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("PERPETRA_FUNDING_INTERVAL_MIN"); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			cfg.Risk.FundingInterval = time.Duration(m) * time.Minute
		}
	}
	if v := os.Getenv("PERPETRA_MAX_LEVERAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxLeverage = n
		}
	}
	if v := os.Getenv("PERPETRA_DECIMAL_SCALE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.DecimalScale = int32(n)
		}
	}
	if v := os.Getenv("PERPETRA_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("PERPETRA_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("PERPETRA_PERSIST"); v != "" {
		cfg.Persistence.Enabled = v == "true"
	}
	if v := os.Getenv("PERPETRA_DB_PATH"); v != "" {
		cfg.Persistence.DBPath = v
	}
	if v := os.Getenv("PERPETRA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configurations that would let the engine start in a
// state guaranteed to violate a spec invariant.
func (c Config) Validate() error {
	if c.Engine.MaxLeverage < 1 {
		return fmt.Errorf("max_leverage must be >= 1, got %d", c.Engine.MaxLeverage)
	}
	if c.Engine.DecimalScale < 0 {
		return fmt.Errorf("decimal_scale must be >= 0, got %d", c.Engine.DecimalScale)
	}
	if c.Risk.LiquidationThreshold.IsNegative() || c.Risk.LiquidationThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("liquidation_threshold must be in [0, 1], got %s", c.Risk.LiquidationThreshold)
	}
	if c.Risk.RiskTickInterval <= 0 {
		return fmt.Errorf("risk_tick_interval must be positive")
	}
	if c.Risk.FundingInterval <= 0 {
		return fmt.Errorf("funding_interval must be positive")
	}
	if c.Engine.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be >= 1, got %d", c.Engine.QueueDepth)
	}
	return nil
}
