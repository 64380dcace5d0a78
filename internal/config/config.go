// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App       AppConfig       `yaml:"app"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Trading   TradingConfig   `yaml:"trading"`
	Timing    TimingConfig    `yaml:"timing"`
	System    SystemConfig    `yaml:"system"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Alerts    AlertConfig     `yaml:"alerts"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	QuoteAsset string `yaml:"quote_asset"` // default USDC
	Venue      string `yaml:"venue"`       // binance or mock
	Testnet    bool   `yaml:"testnet"`
}

// ExchangeConfig contains venue credentials and endpoint overrides
type ExchangeConfig struct {
	APIKey    Secret `yaml:"api_key"`
	SecretKey Secret `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"` // optional override for the REST endpoint
	WSBaseURL string `yaml:"ws_base_url"`
}

// Decimal wraps decimal.Decimal so it can be read from YAML scalars,
// quoted or bare.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	dec, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", node.Value, err)
	}
	d.Decimal = dec
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.Decimal.String(), nil
}

// Dec returns a config Decimal wrapping the given value.
func Dec(v decimal.Decimal) Decimal {
	return Decimal{v}
}

// TradingConfig contains trading parameters. Decimal-valued fields keep
// exact precision from the YAML text.
type TradingConfig struct {
	Leverage      int     `yaml:"leverage"`
	TargetProfit  Decimal `yaml:"target_profit"`  // quote-asset amount
	TotalNotional Decimal `yaml:"total_notional"` // margin budget split across symbols
}

// TimingConfig contains polling and pacing intervals
type TimingConfig struct {
	MonitorIntervalSec   int `yaml:"monitor_interval_sec"`
	DisplayIntervalSec   int `yaml:"display_interval_sec"`
	OrderPacingMs        int `yaml:"order_pacing_ms"`
	ClosePacingMs        int `yaml:"close_pacing_ms"`
	RequestTimeoutSec    int `yaml:"request_timeout_sec"`
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"` // failed polls tolerated before the monitor stops
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AlertConfig contains operator notification settings
type AlertConfig struct {
	TelegramToken   Secret `yaml:"telegram_token"`
	TelegramChatID  string `yaml:"telegram_chat_id"`
	SlackWebhookURL Secret `yaml:"slack_webhook_url"`
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

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateExchangeConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateTradingConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateTimingConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validVenues := []string{"binance", "mock"}
	if !contains(validVenues, c.App.Venue) {
		return ValidationError{
			Field:   "app.venue",
			Value:   c.App.Venue,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validVenues, ", ")),
		}
	}
	if c.App.QuoteAsset == "" {
		return ValidationError{
			Field:   "app.quote_asset",
			Message: "quote asset is required",
		}
	}
	return nil
}

func (c *Config) validateExchangeConfig() error {
	if c.App.Venue == "mock" {
		return nil
	}
	if c.Exchange.APIKey == "" {
		return ValidationError{
			Field:   "exchange.api_key",
			Message: "API key is required",
		}
	}
	if c.Exchange.SecretKey == "" {
		return ValidationError{
			Field:   "exchange.secret_key",
			Message: "secret key is required",
		}
	}
	return nil
}

func (c *Config) validateTradingConfig() error {
	if c.Trading.Leverage < 1 || c.Trading.Leverage > 125 {
		return ValidationError{
			Field:   "trading.leverage",
			Value:   c.Trading.Leverage,
			Message: "leverage must be between 1 and 125",
		}
	}
	if c.Trading.TargetProfit.IsNegative() {
		return ValidationError{
			Field:   "trading.target_profit",
			Value:   c.Trading.TargetProfit,
			Message: "target profit must not be negative",
		}
	}
	if c.Trading.TotalNotional.IsNegative() {
		return ValidationError{
			Field:   "trading.total_notional",
			Value:   c.Trading.TotalNotional,
			Message: "total notional must not be negative",
		}
	}
	return nil
}

func (c *Config) validateTimingConfig() error {
	if c.Timing.MonitorIntervalSec < 1 {
		return ValidationError{
			Field:   "timing.monitor_interval_sec",
			Value:   c.Timing.MonitorIntervalSec,
			Message: "monitor interval must be at least 1 second",
		}
	}
	if c.Timing.DisplayIntervalSec < 1 {
		return ValidationError{
			Field:   "timing.display_interval_sec",
			Value:   c.Timing.DisplayIntervalSec,
			Message: "display interval must be at least 1 second",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration. Secret fields
// redact themselves during marshaling.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a configuration with all defaults applied. LoadConfig
// unmarshals on top of it, so omitted fields keep these values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			QuoteAsset: "USDC",
			Venue:      "binance",
			Testnet:    false,
		},
		Trading: TradingConfig{
			Leverage:      20,
			TargetProfit:  Dec(decimal.NewFromInt(100)),
			TotalNotional: Dec(decimal.NewFromInt(100)),
		},
		Timing: TimingConfig{
			MonitorIntervalSec:   3,
			DisplayIntervalSec:   10,
			OrderPacingMs:        200,
			ClosePacingMs:        150,
			RequestTimeoutSec:    10,
			MaxConsecutiveErrors: 5,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: false,
		},
	}
}
