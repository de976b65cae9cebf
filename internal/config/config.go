// Package config loads and validates service configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"trailwatch.org/internal/auth"
	"trailwatch.org/internal/store"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. TRAILWATCH_HTTP_ADDR. Keys in the .env file carry no prefix.
const EnvPrefix = "TRAILWATCH"

// Config holds application configuration.
type Config struct {
	// HTTPAddr is the address the REST API listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr serves the gRPC health service; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DBDriver is one of postgres, mysql, sqlite.
	DBDriver    string `mapstructure:"DB_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// AuthSecret is the HS256 signing key, at least 32 bytes.
	AuthSecret    string        `mapstructure:"AUTH_SECRET"`
	AuthIssuer    string        `mapstructure:"AUTH_ISSUER"`
	UserTokenTTL  time.Duration `mapstructure:"USER_TOKEN_TTL"`
	AdminTokenTTL time.Duration `mapstructure:"ADMIN_TOKEN_TTL"`
	BcryptCost    int           `mapstructure:"BCRYPT_COST"`

	// SightingLookback is how far back sightings are read per assessment.
	SightingLookback time.Duration `mapstructure:"SIGHTING_LOOKBACK"`
	// AlertRetireAfter is the number of consecutive Low/Medium assessments
	// that retire an automatic alert.
	AlertRetireAfter int `mapstructure:"ALERT_RETIRE_AFTER"`
	// SweepInterval is how often elapsed alerts are deactivated; 0 disables the sweeper.
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	// CORSOrigins is a comma-separated allow list; "*" allows any origin.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads the file at path, or ./.env when path is empty, then overlays
// the environment. A missing ./.env is ignored; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	v.SetConfigFile(path)
	if strings.HasSuffix(path, ".env") {
		v.SetConfigType("env")
	}
	if err := v.ReadInConfig(); err != nil && explicit {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("AUTH_ISSUER", "trailwatch")
	v.SetDefault("USER_TOKEN_TTL", "1h")
	v.SetDefault("ADMIN_TOKEN_TTL", "12h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SIGHTING_LOOKBACK", "720h") // 30d
	v.SetDefault("ALERT_RETIRE_AFTER", 2)
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything needed to serve traffic.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if _, err := store.ParseDialect(c.DBDriver); err != nil {
		return fmt.Errorf("config: DB_DRIVER: %w", err)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if _, err := auth.NewSecret(c.AuthSecret); err != nil {
		return fmt.Errorf("config: AUTH_SECRET: %w", err)
	}
	if c.UserTokenTTL <= 0 || c.AdminTokenTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.AlertRetireAfter < 1 {
		return errors.New("config: ALERT_RETIRE_AFTER must be at least 1")
	}
	if c.SightingLookback < 7*24*time.Hour {
		return errors.New("config: SIGHTING_LOOKBACK must cover at least 7 days")
	}
	if c.SweepInterval < 0 {
		return errors.New("config: SWEEP_INTERVAL must not be negative")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("config: rate limits must not be negative")
	}
	return nil
}

func (c *Config) Dialect() (store.Dialect, error) {
	return store.ParseDialect(c.DBDriver)
}

// Secret builds the signing key.
func (c *Config) Secret() (auth.Secret, error) {
	return auth.NewSecret(c.AuthSecret)
}

func (c *Config) TTLPolicy() auth.TTLPolicy {
	return auth.TTLPolicy{User: c.UserTokenTTL, Admin: c.AdminTokenTTL}
}

// CORSOriginList splits CORSOrigins, dropping blanks.
func (c *Config) CORSOriginList() []string {
	if c == nil || c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
