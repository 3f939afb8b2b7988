package domain

import (
	"context"
	"time"
)

// Notice describes one audited outcome of a mutating operation.
type Notice struct {
	Description string     `json:"description"`
	Entity      EntityType `json:"entity"`
	RecordID    any        `json:"record_id,omitempty"`
	Actor       Actor      `json:"-"`
	At          time.Time  `json:"at"`
}

// ActorID returns the identifier of the acting actor, empty for anonymous calls.
func (n Notice) ActorID() string { return n.Actor.ID }

// Notifier receives audit notices. Delivery is best-effort: the pipeline logs
// returned errors and never surfaces them to the caller.
type Notifier interface {
	CreationSucceeded(ctx context.Context, n Notice) error
	CreationFailed(ctx context.Context, n Notice) error
	UpdateSucceeded(ctx context.Context, n Notice) error
	UpdateFailed(ctx context.Context, n Notice) error
	DeletionSucceeded(ctx context.Context, n Notice) error
	DeletionFailed(ctx context.Context, n Notice) error
}

// Activity names the audited action and its outcome.
type Activity string

// Activities reported through a Notifier.
const (
	ActivityCreate Activity = "create"
	ActivityUpdate Activity = "update"
	ActivityDelete Activity = "delete"
)
