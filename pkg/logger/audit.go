package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType        string
	IdentityID       string
	Identifier       string
	IPAddress        string
	UserAgent        string
	Success          bool
	FailureReason    string
	LockoutTriggered bool
}

// AuditLogger provides structured audit logging. Persistence of the
// attempt record itself is handled by the login-attempt repository; this
// is the immediate slog half of the dual write.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt logs a login or step-up attempt
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.IdentityID != "" {
		attrs = append(attrs, slog.String("identity_id", event.IdentityID))
	}
	if event.Identifier != "" {
		attrs = append(attrs, slog.String("identifier", SanitizedEmail(event.Identifier)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	if event.LockoutTriggered {
		attrs = append(attrs, slog.Bool("lockout_triggered", true))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogLockoutEvent logs lockout state transitions (lock, admin unlock)
func (al *AuditLogger) LogLockoutEvent(eventType, identityID string, lockedUntil *time.Time, violationCount int) {
	attrs := []slog.Attr{
		slog.String("audit_type", "lockout"),
		slog.String("event_type", eventType),
		slog.String("identity_id", identityID),
		slog.Int("violation_count", violationCount),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if lockedUntil != nil {
		attrs = append(attrs, slog.Time("locked_until", *lockedUntil))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}
