// Package api exposes the access-control service over HTTP
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/access"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/config"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/metrics"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/middleware"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes HTTP requests to the access-control service
type Server struct {
	config       *config.Config
	service      *access.Service
	store        Pinger
	metrics      *metrics.Metrics
	router       *mux.Router
	handler      http.Handler
	closers      []io.Closer
	shuttingDown int32
}

// NewServer builds the router and middleware chain. store is used by the
// readiness probe; m may be nil to disable metrics.
func NewServer(cfg *config.Config, service *access.Service, store Pinger, m *metrics.Metrics) *Server {
	s := &Server{
		config:  cfg,
		service: service,
		store:   store,
		metrics: m,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()

	// Order matters: metrics sees the status written by panic recovery and
	// recovery runs inside the per-request Sentry hub.
	s.router.Use(s.metrics.Middleware())
	if cfg.Sentry.Enabled {
		s.router.Use(middleware.SentryMiddleware(false))
		logrus.Info("Sentry middleware enabled")
	}
	s.router.Use(middleware.SentryRecoveryMiddleware())
	s.router.Use(middleware.MaxBodySize(cfg.Server.MaxBodySize))
	s.router.Use(middleware.BearerTokenMiddleware())

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found", Code: string(access.KindNotFound)})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed", Code: "method_not_allowed"})
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.AllowCredentials(),
	)
	s.handler = middleware.SecurityHeaders()(cors(handlers.CustomLoggingHandler(io.Discard, s.router, logRequest)))

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// AddCloser registers a resource released by Close
func (s *Server) AddCloser(c io.Closer) {
	if c != nil {
		s.closers = append(s.closers, c)
	}
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.healthCheck).Methods("GET", "HEAD")
	s.router.HandleFunc("/ready", s.readinessCheck).Methods("GET", "HEAD")
	if s.config.Monitoring.MetricsEnabled && s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
		s.router.Handle("/stats", s.metrics.StatsHandler()).Methods("GET")
	}

	if s.config.Monitoring.PprofEnabled {
		logrus.Info("pprof profiling endpoints enabled at /debug/pprof/")
		s.router.HandleFunc("/debug/pprof/", pprof.Index)
		s.router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		s.router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		s.router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		s.router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		s.router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login/", s.handleLogin).Methods("POST")
	api.HandleFunc("/logout/", s.handleLogout).Methods("POST")
	api.HandleFunc("/token/refresh/", s.handleRefresh).Methods("POST")
	api.HandleFunc("/me/permissions/", s.handleOwnPermissions).Methods("GET")
	api.HandleFunc("/pages/", s.handlePages).Methods("GET")
	api.HandleFunc("/users/", s.handleListUsers).Methods("GET")
	api.HandleFunc("/users/create/", s.handleCreateUser).Methods("POST")
	api.HandleFunc("/users/{user_id:[0-9]+}/permissions/", s.handleSetPermission).Methods("PUT")
	api.HandleFunc("/users/{user_id:[0-9]+}/delete/", s.handleDeleteUser).Methods("DELETE")
}

// logRequest writes one access log line per request, skipping probes
func logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	path := params.URL.Path
	if path == "/health" || path == "/ready" {
		return
	}
	logrus.WithFields(logrus.Fields{
		"method": params.Request.Method,
		"path":   path,
		"status": params.StatusCode,
		"size":   params.Size,
		"remote": params.Request.RemoteAddr,
	}).Info("Request handled")
}

func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if s.IsShuttingDown() {
		w.Header().Set("X-Shutdown-Status", "in-progress")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "shutting-down", "ready": false})
		return
	}
	w.Header().Set("X-Shutdown-Status", "active")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy", "ready": true})
}

// readinessCheck reports ready only while the store answers a ping
func (s *Server) readinessCheck(w http.ResponseWriter, r *http.Request) {
	if s.IsShuttingDown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false, "status": "shutting-down"})
		return
	}

	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			logrus.WithError(err).Warn("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false, "status": "store-unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true, "status": "active"})
}

// SetShuttingDown marks the server as shutting down
func (s *Server) SetShuttingDown() {
	atomic.StoreInt32(&s.shuttingDown, 1)
	logrus.Info("Server marked as shutting down - health checks will return 503")
}

// IsShuttingDown returns true if the server is shutting down
func (s *Server) IsShuttingDown() bool {
	return atomic.LoadInt32(&s.shuttingDown) == 1
}

// Close marks the server as shutting down and releases registered resources
func (s *Server) Close() error {
	s.SetShuttingDown()

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			logrus.WithError(err).Error("Failed to release server resource")
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close server: %d resources failed, first: %w", len(errs), errs[0])
	}
	logrus.Info("Server resources released")
	return nil
}
