// Package audit provides sinks for the notices emitted by resource
// pipelines: a zap audit trail, an object store archive and a fan-out.
package audit

import (
	"context"

	"go.uber.org/zap"

	"resourcechassis/pkg/domain"
)

// Outcome labels for audit entries.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var _ domain.Notifier = (*LogNotifier)(nil)

// LogNotifier writes one structured entry per notice. Successes log at info,
// failures at warn.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier names the logger "audit". A nil logger discards entries.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("audit")}
}

func (l *LogNotifier) write(activity domain.Activity, status string, n domain.Notice) error {
	fields := []zap.Field{
		zap.String("activity", string(activity)),
		zap.String("status", status),
		zap.String("description", n.Description),
		zap.String("entity", string(n.Entity)),
		zap.Any("record_id", n.RecordID),
		zap.String("user_id", n.ActorID()),
		zap.Time("at", n.At),
	}
	if status == StatusFailed {
		l.logger.Warn("audit", fields...)
		return nil
	}
	l.logger.Info("audit", fields...)
	return nil
}

func (l *LogNotifier) CreationSucceeded(_ context.Context, n domain.Notice) error {
	return l.write(domain.ActivityCreate, StatusSucceeded, n)
}

func (l *LogNotifier) CreationFailed(_ context.Context, n domain.Notice) error {
	return l.write(domain.ActivityCreate, StatusFailed, n)
}

func (l *LogNotifier) UpdateSucceeded(_ context.Context, n domain.Notice) error {
	return l.write(domain.ActivityUpdate, StatusSucceeded, n)
}

func (l *LogNotifier) UpdateFailed(_ context.Context, n domain.Notice) error {
	return l.write(domain.ActivityUpdate, StatusFailed, n)
}

func (l *LogNotifier) DeletionSucceeded(_ context.Context, n domain.Notice) error {
	return l.write(domain.ActivityDelete, StatusSucceeded, n)
}

func (l *LogNotifier) DeletionFailed(_ context.Context, n domain.Notice) error {
	return l.write(domain.ActivityDelete, StatusFailed, n)
}
