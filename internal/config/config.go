// Package config provides configuration structures and loading functionality for the access server
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// minSecretLength is the shortest accepted HS256 signing secret
const minSecretLength = 32

// Config represents the main configuration structure for the access server
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Listen       string        `mapstructure:"listen" envconfig:"SERVER_LISTEN" default:":8000"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	MaxBodySize  int64         `mapstructure:"max_body_size" envconfig:"SERVER_MAX_BODY_SIZE" default:"1048576"` // 1MB
	CORSOrigins  []string      `mapstructure:"cors_origins" envconfig:"SERVER_CORS_ORIGINS" default:"http://localhost:5173"`
}

// DatabaseConfig specifies the account and permission store
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver" envconfig:"DB_DRIVER" default:"postgres"` // postgres, memory
	ConnectionString string        `mapstructure:"connection_string" envconfig:"DB_CONNECTION_STRING"`
	MaxOpenConns     int           `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// AuthConfig specifies token and password settings
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret" envconfig:"AUTH_JWT_SECRET"`
	Issuer     string        `mapstructure:"issuer" envconfig:"AUTH_ISSUER" default:"super-admin-dashboard"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" envconfig:"AUTH_ACCESS_TTL" default:"60m"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" envconfig:"AUTH_REFRESH_TTL" default:"24h"`
	Leeway     time.Duration `mapstructure:"leeway" envconfig:"AUTH_LEEWAY" default:"30s"`
	BcryptCost int           `mapstructure:"bcrypt_cost" envconfig:"AUTH_BCRYPT_COST" default:"10"`
}

// RedisConfig configures the refresh token store. When disabled, refresh
// tokens are tracked in process memory.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled" envconfig:"REDIS_ENABLED" default:"false"`
	Addr      string `mapstructure:"addr" envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password  string `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `mapstructure:"key_prefix" envconfig:"REDIS_KEY_PREFIX" default:"sad:refresh:"`
}

// MonitoringConfig contains monitoring and profiling configuration
type MonitoringConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled" envconfig:"MONITORING_METRICS_ENABLED" default:"true"`
	PprofEnabled   bool `mapstructure:"pprof_enabled" envconfig:"MONITORING_PPROF_ENABLED" default:"false"`
}

// SentryConfig contains Sentry error tracking configuration
type SentryConfig struct {
	Enabled          bool     `mapstructure:"enabled" envconfig:"SENTRY_ENABLED" default:"false"`
	DSN              string   `mapstructure:"dsn" envconfig:"SENTRY_DSN"`
	Environment      string   `mapstructure:"environment" envconfig:"SENTRY_ENVIRONMENT" default:"production"`
	SampleRate       float64  `mapstructure:"sample_rate" envconfig:"SENTRY_SAMPLE_RATE" default:"1.0"`
	TracesSampleRate float64  `mapstructure:"traces_sample_rate" envconfig:"SENTRY_TRACES_SAMPLE_RATE" default:"0.1"`
	AttachStacktrace bool     `mapstructure:"attach_stacktrace" envconfig:"SENTRY_ATTACH_STACKTRACE" default:"true"`
	EnableTracing    bool     `mapstructure:"enable_tracing" envconfig:"SENTRY_ENABLE_TRACING" default:"true"`
	Debug            bool     `mapstructure:"debug" envconfig:"SENTRY_DEBUG" default:"false"`
	MaxBreadcrumbs   int      `mapstructure:"max_breadcrumbs" envconfig:"SENTRY_MAX_BREADCRUMBS" default:"30"`
	IgnoreErrors     []string `mapstructure:"ignore_errors"`
	ServerName       string   `mapstructure:"server_name" envconfig:"SENTRY_SERVER_NAME"`
	Release          string   `mapstructure:"release" envconfig:"SENTRY_RELEASE"`
}

// Load builds the configuration from defaults and environment variables,
// then applies configFile on top when one is given. Values present in the
// file take precedence over the environment.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if configFile != "" {
		v := viper.New()
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that every section is usable for the selected backends
func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.ConnectionString == "" {
			return fmt.Errorf("database connection string is required for driver '%s'", cfg.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	if len(cfg.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("auth jwt secret must be at least %d characters", minSecretLength)
	}
	if cfg.Auth.AccessTTL <= 0 || cfg.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("auth token lifetimes must be positive")
	}
	if cfg.Auth.RefreshTTL < cfg.Auth.AccessTTL {
		return fmt.Errorf("auth refresh ttl (%s) must not be shorter than access ttl (%s)", cfg.Auth.RefreshTTL, cfg.Auth.AccessTTL)
	}
	if cfg.Auth.Leeway < 0 || cfg.Auth.Leeway > 2*time.Minute {
		return fmt.Errorf("auth leeway must be between 0 and 2m")
	}
	if cfg.Auth.BcryptCost != 0 && (cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth bcrypt cost must be between 4 and 31")
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	if cfg.Sentry.Enabled && cfg.Sentry.DSN == "" {
		return fmt.Errorf("sentry dsn is required when sentry is enabled")
	}

	return nil
}

// MaskCredential masks sensitive credential values for safe logging
func MaskCredential(credential string) string {
	if len(credential) <= 4 {
		return "[REDACTED]"
	}
	// Show first 4 characters, mask the rest
	return credential[:4] + "****"
}
