// Package logging wires logrus into Sentry and provides the audit log for
// account and permission changes
package logging

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// SentryHook is a logrus hook that sends errors to Sentry
type SentryHook struct {
	levels []logrus.Level
	hub    *sentry.Hub
}

// NewSentryHook creates a new Sentry hook for logrus
func NewSentryHook(levels []logrus.Level) *SentryHook {
	if levels == nil {
		levels = []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		}
	}
	return &SentryHook{
		levels: levels,
	}
}

func (hook *SentryHook) currentHub() *sentry.Hub {
	if hook.hub != nil {
		return hook.hub
	}
	return sentry.CurrentHub()
}

// Fire is called when a log event is fired.
func (hook *SentryHook) Fire(entry *logrus.Entry) error {
	hub := hook.currentHub()
	// Don't send to Sentry if it's not initialized
	if hub == nil || hub.Client() == nil {
		return nil
	}

	hub.CaptureEvent(buildEvent(entry))
	return nil
}

func buildEvent(entry *logrus.Entry) *sentry.Event {
	event := sentry.NewEvent()
	event.Timestamp = entry.Time
	event.Message = entry.Message
	event.Level = logrusLevelToSentryLevel(entry.Level)
	event.Logger = "logrus"

	// Add fields as extra data
	event.Extra = make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		if k == logrus.ErrorKey {
			continue
		}
		event.Extra[k] = v
	}

	if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%T", err),
			Value: err.Error(),
		}}
	}

	event.Tags = make(map[string]string)
	if method, ok := entry.Data["method"].(string); ok {
		event.Tags["http.method"] = method
	}
	if path, ok := entry.Data["path"].(string); ok {
		event.Tags["http.path"] = path
	}
	if status, ok := entry.Data["status"].(int); ok {
		event.Tags["http.status_code"] = fmt.Sprintf("%d", status)
	}
	if operation, ok := entry.Data["operation"].(string); ok {
		event.Tags["operation"] = operation
	}
	if page, ok := entry.Data["page"]; ok {
		event.Tags["page"] = fmt.Sprint(page)
	}
	if userID, ok := entry.Data["user_id"]; ok {
		event.Tags["user_id"] = fmt.Sprint(userID)
	}

	return event
}

// Levels returns the logging levels for which the hook is fired.
func (hook *SentryHook) Levels() []logrus.Level {
	return hook.levels
}

// logrusLevelToSentryLevel converts logrus log levels to Sentry levels
func logrusLevelToSentryLevel(level logrus.Level) sentry.Level {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return sentry.LevelFatal
	case logrus.ErrorLevel:
		return sentry.LevelError
	case logrus.WarnLevel:
		return sentry.LevelWarning
	case logrus.InfoLevel:
		return sentry.LevelInfo
	case logrus.DebugLevel, logrus.TraceLevel:
		return sentry.LevelDebug
	default:
		return sentry.LevelInfo
	}
}

// BreadcrumbHook turns log entries into Sentry breadcrumbs
type BreadcrumbHook struct {
	levels []logrus.Level
}

// NewBreadcrumbHook creates a new breadcrumb hook for logrus
func NewBreadcrumbHook(levels []logrus.Level) *BreadcrumbHook {
	if levels == nil {
		levels = []logrus.Level{
			logrus.InfoLevel,
			logrus.WarnLevel,
			logrus.ErrorLevel,
		}
	}
	return &BreadcrumbHook{
		levels: levels,
	}
}

// Fire is called when a log event is fired.
func (hook *BreadcrumbHook) Fire(entry *logrus.Entry) error {
	hub := sentry.CurrentHub()
	// Don't create breadcrumbs if Sentry is not initialized
	if hub == nil || hub.Client() == nil {
		return nil
	}

	hub.Scope().AddBreadcrumb(buildBreadcrumb(entry), 0)
	return nil
}

func buildBreadcrumb(entry *logrus.Entry) *sentry.Breadcrumb {
	breadcrumb := &sentry.Breadcrumb{
		Type:      "log",
		Category:  "logrus",
		Message:   entry.Message,
		Level:     logrusLevelToSentryLevel(entry.Level),
		Data:      make(map[string]interface{}),
		Timestamp: entry.Time,
	}

	// Add selected fields to breadcrumb data
	for k, v := range entry.Data {
		switch k {
		case "method", "path", "status", "operation", "page", "user_id", "target_user_id":
			breadcrumb.Data[k] = v
		}
	}
	return breadcrumb
}

// Levels returns the logging levels for which the hook is fired.
func (hook *BreadcrumbHook) Levels() []logrus.Level {
	return hook.levels
}
