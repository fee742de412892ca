// Package config defines the global configuration structure for the cinemagic
// billing service. Configuration is loaded once at process initialization and
// is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup: the billing core cannot run with a degraded secret
// set (a missing webhook secret would silently accept forged events).
package config

import (
	"time"

	"cinemagic/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
	Montage  MontageConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// PublicBaseURL is the default redirect target for checkout success and
	// cancel pages when the client omits return_url (no trailing slash).
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// BillingConfig holds Stripe payment integration credentials and keys.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	// StripePriceID is the default subscription price used when a checkout
	// request does not name one.
	StripePriceID   string `envconfig:"STRIPE_PRICE_ID" validate:"required"`
	TrialPeriodDays int    `envconfig:"TRIAL_PERIOD_DAYS" default:"7" validate:"min=0"`
}

// MontageConfig holds the external montage-engine endpoint and credentials.
// The engine is an opaque, potentially long-running media capability; only
// its HTTP contract is known here.
type MontageConfig struct {
	EngineURL string        `envconfig:"MONTAGE_ENGINE_URL" validate:"required,url"`
	APIKey    SecretString  `envconfig:"MONTAGE_API_KEY"`
	Timeout   time.Duration `envconfig:"MONTAGE_TIMEOUT" default:"5m"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
