package audit

import (
	"context"

	"go.uber.org/multierr"

	"resourcechassis/pkg/domain"
)

var _ domain.Notifier = Fanout(nil)

// Fanout delivers every notice to each sink in order. All sinks are tried;
// their errors are combined.
type Fanout []domain.Notifier

// NewFanout drops nil sinks. It returns nil when none remain so callers can
// leave notifications disabled.
func NewFanout(sinks ...domain.Notifier) domain.Notifier {
	var out Fanout
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f Fanout) each(fn func(domain.Notifier) error) error {
	var err error
	for _, n := range f {
		err = multierr.Append(err, fn(n))
	}
	return err
}

func (f Fanout) CreationSucceeded(ctx context.Context, n domain.Notice) error {
	return f.each(func(s domain.Notifier) error { return s.CreationSucceeded(ctx, n) })
}

func (f Fanout) CreationFailed(ctx context.Context, n domain.Notice) error {
	return f.each(func(s domain.Notifier) error { return s.CreationFailed(ctx, n) })
}

func (f Fanout) UpdateSucceeded(ctx context.Context, n domain.Notice) error {
	return f.each(func(s domain.Notifier) error { return s.UpdateSucceeded(ctx, n) })
}

func (f Fanout) UpdateFailed(ctx context.Context, n domain.Notice) error {
	return f.each(func(s domain.Notifier) error { return s.UpdateFailed(ctx, n) })
}

func (f Fanout) DeletionSucceeded(ctx context.Context, n domain.Notice) error {
	return f.each(func(s domain.Notifier) error { return s.DeletionSucceeded(ctx, n) })
}

func (f Fanout) DeletionFailed(ctx context.Context, n domain.Notice) error {
	return f.each(func(s domain.Notifier) error { return s.DeletionFailed(ctx, n) })
}
