package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pointify/ledger/internal/domain"
	"github.com/pointify/ledger/internal/fee"
	"github.com/pointify/ledger/internal/rates"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource    string
	StoreDriver string
	Port        string
	Env         string

	RedisAddr     string
	RedisPassword string

	JWTSecret     string
	JWTIssuer     string
	WebhookSecret string

	Rates rates.Rates
	Fees  fee.Table

	MaxRetries   int
	RetryBackoff time.Duration
}

// Load reads .env (if present), then config.yaml (if present), then the
// environment. Environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("store_driver", DriverPostgres)
	v.SetDefault("server_port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("rate_points_per_brl", "1")
	v.SetDefault("rate_usdt_per_point", "0.18")
	v.SetDefault("rate_btc_per_point", "0.0000018")
	v.SetDefault("fee_transaction_rate", "0.03")
	v.SetDefault("fee_transaction_min", "0.50")
	v.SetDefault("fee_swap_usdt_rate", "0.01")
	v.SetDefault("fee_swap_btc_rate", "0.02")
	v.SetDefault("ledger_max_retries", 3)
	v.SetDefault("ledger_retry_backoff", "20ms")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		DBSource:      v.GetString("db_source"),
		StoreDriver:   strings.ToLower(v.GetString("store_driver")),
		Port:          v.GetString("server_port"),
		Env:           v.GetString("environment"),
		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		JWTSecret:     v.GetString("jwt_secret"),
		JWTIssuer:     v.GetString("jwt_issuer"),
		WebhookSecret: v.GetString("webhook_secret"),
		MaxRetries:    v.GetInt("ledger_max_retries"),
		RetryBackoff:  v.GetDuration("ledger_retry_backoff"),
	}

	var err error
	p := decimalParser{v: v}
	cfg.Rates = rates.Rates{
		PointsPerBRL: p.get("rate_points_per_brl"),
		USDTPerPoint: p.get("rate_usdt_per_point"),
		BTCPerPoint:  p.get("rate_btc_per_point"),
	}
	minFee := p.get("fee_transaction_min")
	cfg.Fees = fee.Table{
		Transaction: fee.Policy{Rate: p.get("fee_transaction_rate"), Currency: domain.CurrencyBRL},
		SwapUSDT:    fee.Policy{Rate: p.get("fee_swap_usdt_rate"), Currency: domain.CurrencyUSDT},
		SwapBTC:     fee.Policy{Rate: p.get("fee_swap_btc_rate"), Currency: domain.CurrencyBTC},
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.Fees.Transaction.Minimum, err = minorUnits(minFee, domain.CurrencyBRL); err != nil {
		return nil, fmt.Errorf("FEE_TRANSACTION_MIN: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET environment variable is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must not be negative")
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("LEDGER_RETRY_BACKOFF must be positive")
	}
	if err := c.Rates.Validate(); err != nil {
		return fmt.Errorf("rates: %w", err)
	}
	return c.Fees.Validate()
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

type decimalParser struct {
	v   *viper.Viper
	err error
}

// get parses key as a decimal and remembers the first failure.
func (p *decimalParser) get(key string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(p.v.GetString(key)))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", strings.ToUpper(key), err)
	}
	return d
}

func minorUnits(d decimal.Decimal, c domain.Currency) (int64, error) {
	shifted := d.Shift(c.Scale())
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%s has more than %d decimal places", d, c.Scale())
	}
	return shifted.IntPart(), nil
}
