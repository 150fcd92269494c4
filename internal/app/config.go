package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (CART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	Payment   PaymentConfig
	Pricing   PricingConfig
	Sessions  SessionConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// PaymentConfig holds the payment provider credentials and the session
// watchdog bound.
type PaymentConfig struct {
	BaseURL         string        `default:"https://api.razorpay.com" usage:"Payment provider API base URL" flag:"payment-base-url"`
	KeyID           string        `usage:"Payment provider key id (CART_PAYMENT_KEYID)" flag:"payment-key-id"`
	Secret          string        `usage:"Payment provider key secret (CART_PAYMENT_SECRET)" flag:"payment-secret"`
	WatchdogTimeout time.Duration `default:"5m" usage:"Unconfirmed payment session deadline" flag:"payment-watchdog"`
}

// PricingConfig controls order pricing at creation time.
type PricingConfig struct {
	TaxRatePercent      string `default:"18" usage:"GST percentage applied on the order subtotal" flag:"tax-rate"`
	StandardShippingFee string `default:"49"  usage:"Flat fee for standard shipping" flag:"standard-shipping-fee"`
	ExpressShippingFee  string `default:"149" usage:"Flat fee for express shipping" flag:"express-shipping-fee"`
}

// SessionConfig controls UI session lifetime.
type SessionConfig struct {
	TTL time.Duration `default:"30m" usage:"Idle UI session eviction deadline" flag:"session-ttl"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// TaxRate parses the configured GST percentage.
func (c PricingConfig) TaxRate() (decimal.Decimal, error) {
	return decimal.NewFromString(c.TaxRatePercent)
}

// ShippingFees parses the configured per-method flat fees.
func (c PricingConfig) ShippingFees() (map[string]decimal.Decimal, error) {
	standard, err := decimal.NewFromString(c.StandardShippingFee)
	if err != nil {
		return nil, errors.Wrap(err, "parse standard shipping fee")
	}
	express, err := decimal.NewFromString(c.ExpressShippingFee)
	if err != nil {
		return nil, errors.Wrap(err, "parse express shipping fee")
	}
	return map[string]decimal.Decimal{
		"standard": standard,
		"express":  express,
	}, nil
}

// LoadConfig loads configuration from environment variables, YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CART",
		Files:     []string{"config.yaml", "/etc/cart-engine/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CART_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL
// and PORT to the application's CART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
