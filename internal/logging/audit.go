package logging

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger records security relevant events: logins, denials and changes
// to accounts or page permissions
type AuditLogger struct {
	logger *logrus.Logger
}

// NewAuditLogger creates an audit logger writing JSON lines to out
func NewAuditLogger(out io.Writer) *AuditLogger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	return &AuditLogger{logger: logger}
}

// LogAuthEvent logs a login, refresh or logout
func (a *AuditLogger) LogAuthEvent(event string, userID int64, success bool) {
	if a == nil {
		return
	}
	entry := a.logger.WithFields(logrus.Fields{
		"event_type": "auth",
		"event":      event,
		"success":    success,
	})
	if userID != 0 {
		entry = entry.WithField("user_id", userID)
	}
	if success {
		entry.Info("Authentication event")
	} else {
		entry.Warn("Authentication event")
	}
}

// LogAccessDenied logs an operation rejected for the calling identity
func (a *AuditLogger) LogAccessDenied(userID int64, operation, reason string) {
	if a == nil {
		return
	}
	a.logger.WithFields(logrus.Fields{
		"event_type": "access_denied",
		"user_id":    userID,
		"operation":  operation,
		"reason":     reason,
	}).Warn("Access denied")
}

// LogChange logs a mutation performed by actorID on targetID
func (a *AuditLogger) LogChange(operation string, actorID, targetID int64, details logrus.Fields) {
	if a == nil {
		return
	}
	entry := a.logger.WithFields(logrus.Fields{
		"event_type":     "change",
		"operation":      operation,
		"user_id":        actorID,
		"target_user_id": targetID,
	})
	for key, value := range details {
		entry = entry.WithField(key, value)
	}
	entry.Info("Access control change")
}
