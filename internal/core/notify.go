package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"resourcechassis/pkg/domain"
)

type outcome bool

const (
	succeeded outcome = true
	failed    outcome = false
)

// dispatcher delivers audit notices best-effort. Errors and panics raised by
// the notifier are logged and dropped.
type dispatcher struct {
	notifier domain.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func (d dispatcher) notify(ctx context.Context, activity domain.Activity, result outcome, n domain.Notice) {
	if d.notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = d.now().UTC()
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audit notifier panicked",
				zap.String("activity", string(activity)),
				zap.String("entity", string(n.Entity)),
				zap.Any("panic", r))
		}
	}()
	var err error
	switch {
	case activity == domain.ActivityCreate && result == succeeded:
		err = d.notifier.CreationSucceeded(ctx, n)
	case activity == domain.ActivityCreate:
		err = d.notifier.CreationFailed(ctx, n)
	case activity == domain.ActivityUpdate && result == succeeded:
		err = d.notifier.UpdateSucceeded(ctx, n)
	case activity == domain.ActivityUpdate:
		err = d.notifier.UpdateFailed(ctx, n)
	case activity == domain.ActivityDelete && result == succeeded:
		err = d.notifier.DeletionSucceeded(ctx, n)
	case activity == domain.ActivityDelete:
		err = d.notifier.DeletionFailed(ctx, n)
	default:
		err = fmt.Errorf("unknown activity %q", activity)
	}
	if err != nil {
		d.logger.Warn("audit notification failed",
			zap.String("activity", string(activity)),
			zap.String("entity", string(n.Entity)),
			zap.Any("record_id", n.RecordID),
			zap.Error(err))
	}
}

var pastTense = map[domain.Activity]string{
	domain.ActivityCreate: "Created",
	domain.ActivityUpdate: "Updated",
	domain.ActivityDelete: "Deleted",
}

func successDescription(activity domain.Activity, name string) string {
	return fmt.Sprintf("%s %s successfully", pastTense[activity], name)
}

func failureDescription(activity domain.Activity, name, msg string) string {
	return fmt.Sprintf("Failed to %s %s. %s", activity, name, msg)
}
