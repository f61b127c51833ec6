package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/access"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/api"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/auth"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/config"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/database"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/logging"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "access-server",
		Short: "Super admin dashboard access server",
		Long:  `Serves login, per-user page permissions and superuser account management for the admin dashboard`,
		RunE:  run,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().String("listen", "", "listen address (overrides config)")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
		"num_cpu": runtime.NumCPU(),
	}).Info("Starting access server")

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Sentry.Enabled {
		if err := initSentry(cfg); err != nil {
			// Sentry is optional; keep serving without it.
			logrus.WithError(err).Error("Failed to initialize Sentry")
			cfg.Sentry.Enabled = false
		} else {
			defer sentry.Flush(2 * time.Second)
			logrus.AddHook(logging.NewSentryHook(nil))
			if cfg.Sentry.MaxBreadcrumbs > 0 {
				logrus.AddHook(logging.NewBreadcrumbHook(nil))
			}
			logrus.Info("Sentry initialized successfully")
		}
	}

	if listenAddr, _ := cmd.Flags().GetString("listen"); listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}

	logrus.WithFields(configFields(cfg)).Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := database.Open(ctx, database.Config{
		Driver:           cfg.Database.Driver,
		ConnectionString: cfg.Database.ConnectionString,
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		MaxIdleConns:     cfg.Database.MaxIdleConns,
		ConnMaxLifetime:  cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	tokens, err := auth.NewTokenStore(ctx, cfg.Redis)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to create token store: %w", err)
	}

	authn, err := auth.NewProvider(cfg.Auth, store, tokens)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to create auth provider: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Monitoring.MetricsEnabled {
		m = metrics.NewMetrics("")
	}

	svc := access.NewService(store, store, authn,
		access.WithMetrics(m),
		access.WithAuditLogger(logging.NewAuditLogger(os.Stdout)),
		access.WithBcryptCost(cfg.Auth.BcryptCost),
	)

	server := api.NewServer(cfg, svc, store, m)
	server.AddCloser(store)
	if closer, ok := tokens.(io.Closer); ok {
		server.AddCloser(closer)
	}

	logrus.WithFields(logrus.Fields{
		"readTimeout":  cfg.Server.ReadTimeout,
		"writeTimeout": cfg.Server.WriteTimeout,
		"idleTimeout":  cfg.Server.IdleTimeout,
		"listen":       cfg.Server.Listen,
	}).Info("Starting HTTP server with configured timeouts")

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	done := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer close(done)
		<-sig
		logrus.Info("Shutting down server...")
		server.SetShuttingDown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("Failed to shutdown server gracefully")
		}
		if err := server.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close server resources")
		}
		cancel()
	}()

	logrus.WithField("addr", cfg.Server.Listen).Info("Server listening")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		_ = server.Close()
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logrus.Info("Server stopped")
	return nil
}

func initSentry(cfg *config.Config) error {
	options := sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		AttachStacktrace: cfg.Sentry.AttachStacktrace,
		EnableTracing:    cfg.Sentry.EnableTracing,
		Debug:            cfg.Sentry.Debug,
		MaxBreadcrumbs:   cfg.Sentry.MaxBreadcrumbs,
		ServerName:       cfg.Sentry.ServerName,
	}

	if options.Release == "" {
		options.Release = fmt.Sprintf("access-server@%s", version)
	}

	if len(cfg.Sentry.IgnoreErrors) > 0 {
		options.BeforeSend = func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if hint.OriginalException != nil {
				errMsg := hint.OriginalException.Error()
				for _, ignore := range cfg.Sentry.IgnoreErrors {
					if strings.Contains(errMsg, ignore) {
						return nil
					}
				}
			}
			return event
		}
	}

	options.Tags = map[string]string{
		"server.version": version,
		"server.commit":  commit,
	}

	return sentry.Init(options)
}

// configFields describes cfg for the startup log with credentials masked
func configFields(cfg *config.Config) logrus.Fields {
	fields := logrus.Fields{
		"listen_addr":   cfg.Server.Listen,
		"db_driver":     cfg.Database.Driver,
		"redis_enabled": cfg.Redis.Enabled,
		"cors_origins":  cfg.Server.CORSOrigins,
	}
	if cfg.Database.ConnectionString != "" {
		fields["db_connection"] = config.MaskCredential(cfg.Database.ConnectionString)
	}
	if cfg.Redis.Enabled {
		fields["redis_addr"] = cfg.Redis.Addr
		if cfg.Redis.Password != "" {
			fields["redis_password"] = config.MaskCredential(cfg.Redis.Password)
		}
	}
	return fields
}
