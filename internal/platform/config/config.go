// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Venlock API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Signing and session settings
	JWT JWTConfig `envPrefix:"JWT_"`

	// Adaptive rate limiting tiers
	Throttle ThrottleConfig

	// Licensing policy
	License LicenseConfig `envPrefix:"LICENSE_"`

	// Outbound email (verification, password reset)
	Email EmailConfig `envPrefix:"EMAIL_"`

	// Cross-Origin Resource Sharing
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// JWTConfig holds the access/refresh token signing parameters.
type JWTConfig struct {
	// Key is the HMAC signing secret. Must be at least 64 bytes.
	Key string `env:"KEY,required"`

	Issuer   string `env:"ISSUER"   envDefault:"venlock"`
	Audience string `env:"AUDIENCE" envDefault:"venlock-clients"`

	AccessTokenExpiryMinutes int `env:"ACCESS_TOKEN_EXPIRY_MINUTES" envDefault:"15"`
	RefreshTokenExpiryDays   int `env:"REFRESH_TOKEN_EXPIRY_DAYS"   envDefault:"7"`
}

// AccessTokenTTL returns the access token lifetime as a duration.
func (c JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpiryMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a duration.
func (c JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpiryDays) * 24 * time.Hour
}

// TierConfig is the tuning tuple for a single throttle tier.
type TierConfig struct {
	// ThrottleThreshold is the request count above which progressive delay begins.
	ThrottleThreshold int64 `env:"THRESHOLD"`

	// MaxRequestsPerMinute is the request count above which the tier blocks.
	MaxRequestsPerMinute int64 `env:"MAX"`

	// WindowSeconds is the sliding counter window.
	WindowSeconds int `env:"WINDOW_SECONDS"`

	// MaxDelayMs caps the progressive delay applied to throttled requests.
	MaxDelayMs int `env:"MAX_DELAY_MS"`

	// PenaltySeconds is how long the penalty state lasts after a block.
	PenaltySeconds int `env:"PENALTY_SECONDS"`
}

// ThrottleConfig groups the three independent throttle tiers.
type ThrottleConfig struct {
	Global TierConfig `envPrefix:"THROTTLE_GLOBAL_"`
	User   TierConfig `envPrefix:"THROTTLE_USER_"`
	Auth   TierConfig `envPrefix:"THROTTLE_AUTH_"`
}

// LicenseConfig holds licensing policy switches.
type LicenseConfig struct {
	// SweepInterval is how often the expiration worker scans for expired licenses.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	// EnforceSingleActive rejects creating a second Active license for a user.
	// The partial unique index exists either way; this switch controls whether
	// the service pre-checks before insert.
	EnforceSingleActive bool `env:"ENFORCE_SINGLE_ACTIVE" envDefault:"false"`
}

// EmailConfig holds the SMTP transport settings for outbound mail.
type EmailConfig struct {
	SMTPHost  string `env:"SMTP_HOST"`
	SMTPPort  int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser  string `env:"SMTP_USER"`
	SMTPPass  string `env:"SMTP_PASS"`
	EnableSSL bool   `env:"ENABLE_SSL" envDefault:"true"`
	FromEmail string `env:"FROM_EMAIL" envDefault:"no-reply@venlock.io"`
	FromName  string `env:"FROM_NAME"  envDefault:"Venlock"`

	// FrontendBaseURL is the base for verification/reset links in email bodies.
	FrontendBaseURL string `env:"FRONTEND_BASE_URL" envDefault:"http://localhost:3000"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	applyThrottleDefaults(&cfg.Throttle)

	return cfg, nil
}

// applyThrottleDefaults fills any unset tier with its production default.
//
// Defaults are intentionally asymmetric: the auth tier is much tighter than
// the global tier because credential stuffing is the attack it exists to slow.
func applyThrottleDefaults(throttle *ThrottleConfig) {
	if throttle.Global.MaxRequestsPerMinute == 0 {
		throttle.Global = TierConfig{
			ThrottleThreshold:    60,
			MaxRequestsPerMinute: 120,
			WindowSeconds:        60,
			MaxDelayMs:           2000,
			PenaltySeconds:       300,
		}
	}
	if throttle.User.MaxRequestsPerMinute == 0 {
		throttle.User = TierConfig{
			ThrottleThreshold:    30,
			MaxRequestsPerMinute: 60,
			WindowSeconds:        60,
			MaxDelayMs:           2000,
			PenaltySeconds:       300,
		}
	}
	if throttle.Auth.MaxRequestsPerMinute == 0 {
		throttle.Auth = TierConfig{
			ThrottleThreshold:    3,
			MaxRequestsPerMinute: 5,
			WindowSeconds:        60,
			MaxDelayMs:           5000,
			PenaltySeconds:       300,
		}
	}
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
