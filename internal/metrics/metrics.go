// Package metrics exposes Prometheus instrumentation for the access server
package metrics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "super_admin_dashboard"

// Metrics holds every collector exported by the server. All methods are safe
// on a nil receiver so metrics can be switched off.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	LoginsTotal           *prometheus.CounterVec
	TokenRefreshesTotal   *prometheus.CounterVec
	AccessDeniedTotal     *prometheus.CounterVec
	PermissionWritesTotal *prometheus.CounterVec
	UserChangesTotal      *prometheus.CounterVec

	requestCount uint64
	errorCount   uint64
	startTime    time.Time
}

// Stats is a point-in-time summary of request counters
type Stats struct {
	TotalRequests  uint64
	TotalErrors    uint64
	RequestsPerSec float64
	ErrorRate      float64
	Uptime         time.Duration
}

var (
	metricsOnce   sync.Once
	globalMetrics *Metrics
)

// NewMetrics creates the metrics set (singleton to avoid duplicate registration)
func NewMetrics(namespace string) *Metrics {
	metricsOnce.Do(func() {
		if namespace == "" {
			namespace = defaultNamespace
		}

		globalMetrics = &Metrics{
			RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			}, []string{"method", "route", "status"}),
			RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"}),
			RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests being served",
			}),
			LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by result",
			}, []string{"result"}),
			TokenRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Refresh token exchanges by result",
			}, []string{"result"}),
			AccessDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_denied_total",
				Help:      "Rejected operations by operation and error kind",
			}, []string{"operation", "kind"}),
			PermissionWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_writes_total",
				Help:      "Page permission upserts by page",
			}, []string{"page"}),
			UserChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "user_changes_total",
				Help:      "Account creations and deletions",
			}, []string{"action"}),
			startTime: time.Now(),
		}

		prometheus.MustRegister(
			globalMetrics.RequestsTotal,
			globalMetrics.RequestDuration,
			globalMetrics.RequestsInFlight,
			globalMetrics.LoginsTotal,
			globalMetrics.TokenRefreshesTotal,
			globalMetrics.AccessDeniedTotal,
			globalMetrics.PermissionWritesTotal,
			globalMetrics.UserChangesTotal,
		)
	})

	return globalMetrics
}

// IncLogin records a login attempt with result "success" or "failure"
func (m *Metrics) IncLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// IncTokenRefresh records a refresh token exchange
func (m *Metrics) IncTokenRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefreshesTotal.WithLabelValues(result).Inc()
}

// IncAccessDenied records an operation rejected with a domain error
func (m *Metrics) IncAccessDenied(operation, kind string) {
	if m == nil {
		return
	}
	m.AccessDeniedTotal.WithLabelValues(operation, kind).Inc()
}

// IncPermissionWrite records a page permission upsert
func (m *Metrics) IncPermissionWrite(page string) {
	if m == nil {
		return
	}
	m.PermissionWritesTotal.WithLabelValues(page).Inc()
}

// IncUserChange records an account creation or deletion
func (m *Metrics) IncUserChange(action string) {
	if m == nil {
		return
	}
	m.UserChangesTotal.WithLabelValues(action).Inc()
}

// GetStats returns the request counters accumulated since start or the last reset
func (m *Metrics) GetStats() Stats {
	if m == nil {
		return Stats{}
	}

	requests := atomic.LoadUint64(&m.requestCount)
	errors := atomic.LoadUint64(&m.errorCount)
	uptime := time.Since(m.startTime)

	stats := Stats{
		TotalRequests: requests,
		TotalErrors:   errors,
		Uptime:        uptime,
	}
	if secs := uptime.Seconds(); secs > 0 {
		stats.RequestsPerSec = float64(requests) / secs
	}
	if requests > 0 {
		stats.ErrorRate = float64(errors) / float64(requests)
	}
	return stats
}

// ResetStats zeroes the request counters
func (m *Metrics) ResetStats() {
	if m == nil {
		return
	}
	atomic.StoreUint64(&m.requestCount, 0)
	atomic.StoreUint64(&m.errorCount, 0)
	m.startTime = time.Now()
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// StatsHandler serves GetStats as JSON
func (m *Metrics) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		stats := m.GetStats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total_requests":   stats.TotalRequests,
			"total_errors":     stats.TotalErrors,
			"requests_per_sec": stats.RequestsPerSec,
			"error_rate":       stats.ErrorRate,
			"uptime_seconds":   stats.Uptime.Seconds(),
		})
	})
}

// Middleware records request counts and latency labelled by route template
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			atomic.AddUint64(&m.requestCount, 1)
			if rw.statusCode >= http.StatusInternalServerError {
				atomic.AddUint64(&m.errorCount, 1)
			}

			m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeTemplate keeps label cardinality bounded by using the mux route
// template instead of the raw path
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

// WriteHeader records and forwards the first status code only
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
