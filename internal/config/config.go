package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TradeMode restricts which signal directions are actionable.
type TradeMode string

const (
	TradeModeBoth      TradeMode = "BOTH"
	TradeModeLongOnly  TradeMode = "LONG_ONLY"
	TradeModeShortOnly TradeMode = "SHORT_ONLY"
)

// TargetLevel is one take-profit level expressed as a multiple of the
// setup range, with the fraction of the position closed at that level.
type TargetLevel struct {
	Level   float64 `json:"level"`   // Fibonacci multiple of the setup range
	Percent float64 `json:"percent"` // Fraction of position size (0..1)
}

// Config is the complete, immutable configuration for one engine instance.
// It is built once at startup and passed into every component; nothing in
// the engine mutates it.
type Config struct {
	// Account identity used to key persisted state
	AccountID string `json:"account_id"`

	Strategy StrategyConfig `json:"strategy"`
	Risk     RiskConfig     `json:"risk"`
	Filters  FilterConfig   `json:"filters"`
	Engine   EngineConfig   `json:"engine"`
	Exchange ExchangeConfig `json:"exchange"`
	Storage  StorageConfig  `json:"storage"`

	// Notification configuration (optional)
	Notifications *NotificationConfig `json:"notifications,omitempty"`

	// Monitoring configuration (optional)
	Monitoring *MonitoringConfig `json:"monitoring,omitempty"`
}

// StrategyConfig holds signal detection and trade-plan parameters.
type StrategyConfig struct {
	// Instruments scanned for setups; base coins, e.g. "BTC", "SOL"
	Symbols []string `json:"symbols"`

	// Candle timeframes scanned per symbol, e.g. "5m", "15m", "1h"
	Timeframes []string `json:"timeframes"`

	// Which signal directions are actionable
	TradeMode TradeMode `json:"trade_mode"`

	// Take-profit levels anchored at the setup extreme; level 1 is
	// mandatory, later levels optional
	Targets []TargetLevel `json:"targets"`

	// Protective stop distance as a multiple of the setup range
	StopMultiplier float64 `json:"stop_multiplier"`

	// Second entry distance as a multiple of the setup range
	Entry2Multiplier float64 `json:"entry2_multiplier"`

	// Entry2Allowed is set by the subscription plan; Entry2Enabled is the
	// user toggle. Both must be true for the second entry to be placed.
	Entry2Allowed bool `json:"entry2_allowed"`
	Entry2Enabled bool `json:"entry2_enabled"`

	// When true, the last target level is moved to the setup extreme
	// (multiple 0.0) once the second entry has filled
	Entry2AdjustLastTarget bool `json:"entry2_adjust_last_target"`

	// Indicator parameters
	RSIPeriod       int `json:"rsi_period"`
	VolumeSMAPeriod int `json:"volume_sma_period"`
}

// RiskConfig holds position sizing limits.
type RiskConfig struct {
	TargetLossUSD     float64 `json:"target_loss_usd"`      // Fixed dollar risk per trade
	MaxGlobalExposure float64 `json:"max_global_exposure"`  // Cap on total open notional
	MaxSingleExposure float64 `json:"max_single_exposure"`  // Cap on one position's notional
	MaxPositions      int     `json:"max_positions"`        // Distinct busy symbols allowed
	FallbackStopPct   float64 `json:"fallback_stop_pct"`    // Stop distance when no plan is recorded
	MinOrderNotional  float64 `json:"min_order_notional"`   // Below this the signal is discarded
}

// FilterConfig holds the veto-layer settings.
type FilterConfig struct {
	LSREnabled      bool `json:"lsr_enabled"`
	StrengthEnabled bool `json:"strength_enabled"`
}

// EngineConfig holds loop cadence settings.
type EngineConfig struct {
	PollIntervalSec     int `json:"poll_interval_sec"`
	HistorySyncSec      int `json:"history_sync_sec"`
	LSRRefreshSec       int `json:"lsr_refresh_sec"`
	StrengthRefreshSec  int `json:"strength_refresh_sec"`
	AnalyzedCandleBound int `json:"analyzed_candle_bound"`
}

// ExchangeConfig holds venue and reference-source settings. API credentials
// are not stored here; they come from the environment.
type ExchangeConfig struct {
	// Bybit environment: "mainnet", "testnet", "demo"
	Environment string `json:"environment"`

	// Contract category on the venue; the engine only trades linear perps
	Category string `json:"category"`

	// Optional override for the reference data source base URL
	ReferenceBaseURL string `json:"reference_base_url,omitempty"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// "file" or "redis"
	Backend string `json:"backend"`

	// File backend: directory holding per-account state files
	Dir string `json:"dir,omitempty"`

	// Redis backend
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
}

// NotificationConfig holds Telegram settings.
type NotificationConfig struct {
	Enabled       bool   `json:"enabled"`
	TelegramToken string `json:"telegram_token,omitempty"`
	TelegramChat  string `json:"telegram_chat,omitempty"`
}

// MonitoringConfig holds the metrics listener settings.
type MonitoringConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty"`
}

// Load reads configuration from a JSON file, applies defaults and validates.
func Load(configFile string) (*Config, error) {
	// Bare names resolve under configs/
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// SetDefaults fills zero-valued fields with sane defaults.
func (c *Config) SetDefaults() {
	if c.AccountID == "" {
		c.AccountID = "default"
	}
	if c.Strategy.TradeMode == "" {
		c.Strategy.TradeMode = TradeModeBoth
	}
	if len(c.Strategy.Targets) == 0 {
		c.Strategy.Targets = []TargetLevel{
			{Level: 0.618, Percent: 0.50},
			{Level: 1.0, Percent: 0.50},
		}
	}
	if c.Strategy.StopMultiplier == 0 {
		c.Strategy.StopMultiplier = 1.8
	}
	if c.Strategy.Entry2Multiplier == 0 {
		c.Strategy.Entry2Multiplier = 1.414
	}
	if c.Strategy.RSIPeriod == 0 {
		c.Strategy.RSIPeriod = 14
	}
	if c.Strategy.VolumeSMAPeriod == 0 {
		c.Strategy.VolumeSMAPeriod = 20
	}

	if c.Risk.TargetLossUSD == 0 {
		c.Risk.TargetLossUSD = 5.0
	}
	if c.Risk.MaxGlobalExposure == 0 {
		c.Risk.MaxGlobalExposure = 5000.0
	}
	if c.Risk.MaxSingleExposure == 0 {
		c.Risk.MaxSingleExposure = 2500.0
	}
	if c.Risk.MaxPositions == 0 {
		c.Risk.MaxPositions = 2
	}
	if c.Risk.FallbackStopPct == 0 {
		c.Risk.FallbackStopPct = 0.005
	}
	if c.Risk.MinOrderNotional == 0 {
		c.Risk.MinOrderNotional = 10.0
	}

	if c.Engine.PollIntervalSec == 0 {
		c.Engine.PollIntervalSec = 30
	}
	if c.Engine.HistorySyncSec == 0 {
		c.Engine.HistorySyncSec = 20
	}
	if c.Engine.LSRRefreshSec == 0 {
		c.Engine.LSRRefreshSec = 1800
	}
	if c.Engine.StrengthRefreshSec == 0 {
		c.Engine.StrengthRefreshSec = 900
	}
	if c.Engine.AnalyzedCandleBound == 0 {
		c.Engine.AnalyzedCandleBound = 1000
	}

	if c.Exchange.Environment == "" {
		c.Exchange.Environment = "mainnet"
	}
	if c.Exchange.Category == "" {
		c.Exchange.Category = "linear"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.Backend == "file" && c.Storage.Dir == "" {
		c.Storage.Dir = "state"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.Strategy.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if len(c.Strategy.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}
	switch c.Strategy.TradeMode {
	case TradeModeBoth, TradeModeLongOnly, TradeModeShortOnly:
	default:
		return fmt.Errorf("invalid trade mode: %s", c.Strategy.TradeMode)
	}
	for _, tf := range c.Strategy.Timeframes {
		if _, err := TimeframeSeconds(tf); err != nil {
			return err
		}
	}

	totalPct := 0.0
	for i, t := range c.Strategy.Targets {
		if t.Level < 0 {
			return fmt.Errorf("target %d level must not be negative", i+1)
		}
		if t.Percent <= 0 || t.Percent > 1 {
			return fmt.Errorf("target %d percent must be in (0, 1]", i+1)
		}
		totalPct += t.Percent
	}
	if totalPct > 1.0001 {
		return fmt.Errorf("target percents sum to %.2f, must not exceed 1.0", totalPct)
	}

	if c.Strategy.StopMultiplier <= 0 {
		return fmt.Errorf("stop multiplier must be positive")
	}
	if c.Strategy.Entry2Multiplier <= 0 {
		return fmt.Errorf("entry2 multiplier must be positive")
	}

	if c.Risk.TargetLossUSD <= 0 {
		return fmt.Errorf("target loss must be positive")
	}
	if c.Risk.MaxSingleExposure > c.Risk.MaxGlobalExposure {
		return fmt.Errorf("max single exposure exceeds max global exposure")
	}
	if c.Risk.MaxPositions < 1 {
		return fmt.Errorf("max positions must be at least 1")
	}

	switch c.Storage.Backend {
	case "file":
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis storage requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	switch c.Exchange.Environment {
	case "mainnet", "testnet", "demo":
	default:
		return fmt.Errorf("unknown exchange environment: %s", c.Exchange.Environment)
	}

	return nil
}

// TwoEntriesActive reports whether the second-entry feature is both allowed
// by the plan and enabled by the user.
func (c *Config) TwoEntriesActive() bool {
	return c.Strategy.Entry2Allowed && c.Strategy.Entry2Enabled
}

// Target1Level returns the first configured target multiple.
func (c *Config) Target1Level() float64 {
	if len(c.Strategy.Targets) == 0 {
		return 0.618
	}
	return c.Strategy.Targets[0].Level
}

// TimeframeSeconds converts a timeframe string like "5m", "1h" or "1d"
// into its length in seconds.
func TimeframeSeconds(tf string) (int64, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe: %q", tf)
	}
	unit := tf[len(tf)-1]
	var value int
	if _, err := fmt.Sscanf(tf[:len(tf)-1], "%d", &value); err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid timeframe: %q", tf)
	}
	switch unit {
	case 'm':
		return int64(value) * 60, nil
	case 'h':
		return int64(value) * 3600, nil
	case 'd':
		return int64(value) * 86400, nil
	}
	return 0, fmt.Errorf("invalid timeframe unit: %q", tf)
}
