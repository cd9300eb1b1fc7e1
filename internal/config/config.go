// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Store       StoreConfig       `yaml:"store"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Trading     TradingConfig     `yaml:"trading"`
	TakeProfit  TakeProfitConfig  `yaml:"take_profit"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Worker      WorkerConfig      `yaml:"worker"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	SessionID string `yaml:"session_id"`
	LogLevel  string `yaml:"log_level"`
}

// StoreConfig selects and configures the KeyedStore backend
type StoreConfig struct {
	Backend       string `yaml:"backend"` // memory, sqlite, redis
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// ExchangeConfig configures the exchange boundary client
type ExchangeConfig struct {
	Name           string  `yaml:"name"` // mock, remote
	BaseURL        string  `yaml:"base_url"`
	StreamURL      string  `yaml:"stream_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimit      float64 `yaml:"rate_limit"`
	RateBurst      int     `yaml:"rate_burst"`
}

// TradingConfig contains trading parameters
type TradingConfig struct {
	Symbols               []string            `yaml:"symbols"`
	InitialBudget         float64             `yaml:"initial_budget"`
	MakerFeeRate          float64             `yaml:"maker_fee_rate"`
	ProfitPercent         float64             `yaml:"profit_percent"`
	DustThreshold         float64             `yaml:"dust_threshold"`
	BalanceCacheTTLSecs   int                 `yaml:"balance_cache_ttl_seconds"`
	PricePrecision        int                 `yaml:"price_precision"`
	SizePrecision         int                 `yaml:"size_precision"`
	AssetVariants         map[string][]string `yaml:"asset_variants"`
}

// TakeProfitConfig contains take-profit coordination settings
type TakeProfitConfig struct {
	ClaimTTLSeconds     int     `yaml:"claim_ttl_seconds"`
	RecordTTLHours      int     `yaml:"record_ttl_hours"`
	AgingEnabled        bool    `yaml:"aging_enabled"`
	AgeThresholdMinutes int     `yaml:"age_threshold_minutes"`
	AgeStepMinutes      int     `yaml:"age_step_minutes"`
	AgeStepReduction    float64 `yaml:"age_step_reduction"`
	MinMarkup           float64 `yaml:"min_markup"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	PairPoolSize        int `yaml:"pair_pool_size"`
	PairPoolBuffer      int `yaml:"pair_pool_buffer"`
	PositionParallelism int `yaml:"position_parallelism"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	MetricsPort   int  `yaml:"metrics_port"`
}

// WorkerConfig contains liveness heartbeat settings
type WorkerConfig struct {
	HeartbeatSeconds    int `yaml:"heartbeat_seconds"`
	HeartbeatTTLSeconds int `yaml:"heartbeat_ttl_seconds"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "INFO"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Exchange.TimeoutSeconds == 0 {
		c.Exchange.TimeoutSeconds = 10
	}
	if c.Exchange.RateLimit == 0 {
		c.Exchange.RateLimit = 25
	}
	if c.Exchange.RateBurst == 0 {
		c.Exchange.RateBurst = 30
	}
	if c.Trading.DustThreshold == 0 {
		c.Trading.DustThreshold = 1e-6
	}
	if c.Trading.BalanceCacheTTLSecs == 0 {
		c.Trading.BalanceCacheTTLSecs = 10
	}
	if c.Trading.PricePrecision == 0 {
		c.Trading.PricePrecision = 2
	}
	if c.Trading.SizePrecision == 0 {
		c.Trading.SizePrecision = 6
	}
	if c.TakeProfit.ClaimTTLSeconds == 0 {
		c.TakeProfit.ClaimTTLSeconds = 600
	}
	if c.TakeProfit.RecordTTLHours == 0 {
		c.TakeProfit.RecordTTLHours = 168
	}
	if c.TakeProfit.AgeThresholdMinutes == 0 {
		c.TakeProfit.AgeThresholdMinutes = 60
	}
	if c.TakeProfit.AgeStepMinutes == 0 {
		c.TakeProfit.AgeStepMinutes = 240
	}
	if c.Concurrency.PairPoolSize == 0 {
		c.Concurrency.PairPoolSize = 8
	}
	if c.Concurrency.PairPoolBuffer == 0 {
		c.Concurrency.PairPoolBuffer = 64
	}
	if c.Concurrency.PositionParallelism == 0 {
		c.Concurrency.PositionParallelism = 4
	}
	if c.Worker.HeartbeatSeconds == 0 {
		c.Worker.HeartbeatSeconds = 10
	}
	if c.Worker.HeartbeatTTLSeconds == 0 {
		c.Worker.HeartbeatTTLSeconds = 30
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	for _, check := range []func() error{
		c.validateApp,
		c.validateStore,
		c.validateExchange,
		c.validateTrading,
		c.validateTakeProfit,
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateApp() error {
	if c.App.SessionID == "" {
		return ValidationError{Field: "app.session_id", Message: "session id is required"}
	}
	valid := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(valid, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "memory":
		return nil
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return ValidationError{Field: "store.sqlite_path", Message: "path is required for the sqlite backend"}
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return ValidationError{Field: "store.redis_addr", Message: "address is required for the redis backend"}
		}
	default:
		return ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: "must be one of: memory, sqlite, redis",
		}
	}
	return nil
}

func (c *Config) validateExchange() error {
	switch c.Exchange.Name {
	case "mock":
		return nil
	case "remote":
		if c.Exchange.BaseURL == "" {
			return ValidationError{Field: "exchange.base_url", Message: "base url is required for the remote exchange"}
		}
	default:
		return ValidationError{
			Field:   "exchange.name",
			Value:   c.Exchange.Name,
			Message: "must be one of: mock, remote",
		}
	}
	return nil
}

func (c *Config) validateTrading() error {
	if len(c.Trading.Symbols) == 0 {
		return ValidationError{Field: "trading.symbols", Message: "at least one symbol is required"}
	}
	// Trading with a fabricated budget is unsafe; this is the one validation
	// that must halt the process before the core starts.
	if c.Trading.InitialBudget <= 0 {
		return ValidationError{
			Field:   "trading.initial_budget",
			Value:   c.Trading.InitialBudget,
			Message: "no initial budget configured; refusing to start",
		}
	}
	if c.Trading.MakerFeeRate < 0 || c.Trading.MakerFeeRate > 1 {
		return ValidationError{
			Field:   "trading.maker_fee_rate",
			Value:   c.Trading.MakerFeeRate,
			Message: "must be between 0 and 1",
		}
	}
	if c.Trading.ProfitPercent <= 0 {
		return ValidationError{
			Field:   "trading.profit_percent",
			Value:   c.Trading.ProfitPercent,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateTakeProfit() error {
	if c.TakeProfit.AgeStepReduction < 0 {
		return ValidationError{
			Field:   "take_profit.age_step_reduction",
			Value:   c.TakeProfit.AgeStepReduction,
			Message: "must not be negative",
		}
	}
	if c.TakeProfit.MinMarkup < 0 {
		return ValidationError{
			Field:   "take_profit.min_markup",
			Value:   c.TakeProfit.MinMarkup,
			Message: "must not be negative",
		}
	}
	return nil
}

// BalanceCacheTTL returns the balance cache TTL as a duration
func (c *TradingConfig) BalanceCacheTTL() time.Duration {
	return time.Duration(c.BalanceCacheTTLSecs) * time.Second
}

// ClaimTTL returns the claim TTL as a duration
func (c *TakeProfitConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLSeconds) * time.Second
}

// RecordTTL returns the durable record TTL as a duration
func (c *TakeProfitConfig) RecordTTL() time.Duration {
	return time.Duration(c.RecordTTLHours) * time.Hour
}

// AgeThreshold returns the aging threshold as a duration
func (c *TakeProfitConfig) AgeThreshold() time.Duration {
	return time.Duration(c.AgeThresholdMinutes) * time.Minute
}

// AgeStep returns the aging step as a duration
func (c *TakeProfitConfig) AgeStep() time.Duration {
	return time.Duration(c.AgeStepMinutes) * time.Minute
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
