package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/sirupsen/logrus"
)

const internalErrorBody = `{"error":"Internal server error","code":"internal_error"}`

// SentryMiddleware binds a per-request Sentry hub to the request context and
// reports responses with a 5xx status.
func SentryMiddleware(repanic bool) func(http.Handler) http.Handler {
	sentryHandler := sentryhttp.New(sentryhttp.Options{
		Repanic:         repanic,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})

	return func(next http.Handler) http.Handler {
		return sentryHandler.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Add request info to the Sentry scope
			hub := sentry.GetHubFromContext(r.Context())
			if hub != nil {
				hub.Scope().SetRequest(r)
				hub.Scope().SetTag("http.method", r.Method)
				hub.Scope().SetTag("http.path", r.URL.Path)
			}

			next.ServeHTTP(wrapped, r)

			// Capture server errors (5xx)
			if wrapped.statusCode >= http.StatusInternalServerError && hub != nil {
				hub.WithScope(func(scope *sentry.Scope) {
					scope.SetLevel(sentry.LevelError)
					scope.SetTag("http.status", fmt.Sprintf("%d", wrapped.statusCode))
					hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s %s", wrapped.statusCode, r.Method, r.URL.Path))
				})
			}
		}))
	}
}

// SentryRecoveryMiddleware turns a handler panic into a JSON 500 and reports
// it to Sentry when a client is configured.
func SentryRecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					// Log the panic
					logrus.WithFields(logrus.Fields{
						"error":  err,
						"method": r.Method,
						"path":   r.URL.Path,
					}).Error("Panic recovered")

					// Send to Sentry
					hub := sentry.GetHubFromContext(r.Context())
					if hub == nil {
						hub = sentry.CurrentHub()
					}
					if hub.Client() != nil {
						hub.RecoverWithContext(r.Context(), err)
						hub.Flush(2 * time.Second)
					}

					// Return error response
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(internalErrorBody))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter captures the status code of the first WriteHeader
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// CaptureError reports err to Sentry with the given tags and extra context.
// The hub is cloned so the tags do not leak into the request scope.
func CaptureError(ctx context.Context, err error, tags map[string]string, extra map[string]interface{}) {
	if err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	// Clone hub to avoid modifying the original scope
	hub = hub.Clone()

	// Add tags
	for k, v := range tags {
		hub.Scope().SetTag(k, v)
	}
	// Add extra context
	for k, v := range extra {
		hub.Scope().SetContext(k, map[string]interface{}{
			"value": v,
		})
	}

	hub.CaptureException(err)
}
