package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "memory"},
		Auth: AuthConfig{
			JWTSecret:  testSecret,
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
			BcryptCost: 10,
		},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.Listen != ":8000" {
		t.Errorf("Expected default listen :8000, got %s", cfg.Server.Listen)
	}
	if cfg.Server.MaxBodySize != 1048576 {
		t.Errorf("Expected default max body size 1MB, got %d", cfg.Server.MaxBodySize)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:5173" {
		t.Errorf("Expected dashboard origin by default, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Auth.AccessTTL != 60*time.Minute {
		t.Errorf("Expected default access ttl 60m, got %s", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.RefreshTTL != 24*time.Hour {
		t.Errorf("Expected default refresh ttl 24h, got %s", cfg.Auth.RefreshTTL)
	}
	if cfg.Auth.Issuer != "super-admin-dashboard" {
		t.Errorf("Expected default issuer, got %s", cfg.Auth.Issuer)
	}
	if cfg.Redis.Enabled {
		t.Error("Expected redis to be disabled by default")
	}
	if !cfg.Monitoring.MetricsEnabled {
		t.Error("Expected metrics to be enabled by default")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("SERVER_LISTEN", ":9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_CONNECTION_STRING", "postgres://localhost/dashboard?sslmode=disable")
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	t.Setenv("AUTH_ACCESS_TTL", "5m")
	t.Setenv("SERVER_CORS_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.Listen != ":9090" {
		t.Errorf("Expected listen :9090, got %s", cfg.Server.Listen)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected driver to be normalized to postgres, got %s", cfg.Database.Driver)
	}
	if cfg.Auth.AccessTTL != 5*time.Minute {
		t.Errorf("Expected access ttl 5m, got %s", cfg.Auth.AccessTTL)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("Expected two CORS origins, got %v", cfg.Server.CORSOrigins)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  listen: ":7000"
database:
  driver: memory
auth:
  issuer: dashboard-test
  refresh_ttl: 48h
redis:
  enabled: true
  addr: "redis:6379"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Server.Listen != ":7000" {
		t.Errorf("Expected listen :7000, got %s", cfg.Server.Listen)
	}
	if cfg.Auth.Issuer != "dashboard-test" {
		t.Errorf("Expected issuer from file, got %s", cfg.Auth.Issuer)
	}
	if cfg.Auth.RefreshTTL != 48*time.Hour {
		t.Errorf("Expected refresh ttl 48h, got %s", cfg.Auth.RefreshTTL)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Error("Expected secret from environment to survive file overlay")
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Expected redis settings from file, got %+v", cfg.Redis)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid memory config",
			mutate: func(*Config) {},
		},
		{
			name: "postgres without connection string",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
			},
			wantErr: "connection string is required",
		},
		{
			name: "unsupported driver",
			mutate: func(c *Config) {
				c.Database.Driver = "sqlite"
			},
			wantErr: "unsupported database driver",
		},
		{
			name: "short secret",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = "short"
			},
			wantErr: "jwt secret must be at least",
		},
		{
			name: "refresh shorter than access",
			mutate: func(c *Config) {
				c.Auth.RefreshTTL = time.Minute
			},
			wantErr: "must not be shorter than access ttl",
		},
		{
			name: "zero access ttl",
			mutate: func(c *Config) {
				c.Auth.AccessTTL = 0
			},
			wantErr: "lifetimes must be positive",
		},
		{
			name: "bcrypt cost out of range",
			mutate: func(c *Config) {
				c.Auth.BcryptCost = 40
			},
			wantErr: "bcrypt cost",
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
			},
			wantErr: "redis address is required",
		},
		{
			name: "sentry without dsn",
			mutate: func(c *Config) {
				c.Sentry.Enabled = true
			},
			wantErr: "sentry dsn is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no validation error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestSentryConfig_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Sentry.Enabled {
		t.Error("Expected Sentry to be disabled by default")
	}
	if cfg.Sentry.Environment != "production" {
		t.Errorf("Expected default environment production, got %s", cfg.Sentry.Environment)
	}
	if cfg.Sentry.MaxBreadcrumbs != 30 {
		t.Errorf("Expected default max breadcrumbs 30, got %d", cfg.Sentry.MaxBreadcrumbs)
	}
}

func TestMaskCredential(t *testing.T) {
	if got := MaskCredential("abc"); got != "[REDACTED]" {
		t.Errorf("Expected short credential to be fully redacted, got %s", got)
	}
	if got := MaskCredential("abcdefgh"); got != "abcd****" {
		t.Errorf("Expected abcd****, got %s", got)
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := validConfig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = validate(cfg)
	}
}
