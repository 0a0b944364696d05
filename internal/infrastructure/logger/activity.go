package logger

import (
	"context"

	"address-intelligence/internal/domain/entity"

	"go.uber.org/zap"
)

// ActivityLog writes audit events to the structured log. It is the activity
// sink when no database is configured.
type ActivityLog struct {
	logger *Logger
}

// NewActivityLog creates a log-backed activity sink
func NewActivityLog(l *Logger) *ActivityLog {
	return &ActivityLog{logger: l.WithComponent("activity")}
}

// Log implements the activity logger contract
func (a *ActivityLog) Log(_ context.Context, event entity.ActivityEvent) error {
	a.logger.Info(event.Action,
		zap.Int64("user_id", event.UserID),
		zap.String("session_id", event.SessionID),
		zap.Any("details", event.Details))
	return nil
}
