package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"resourcechassis/internal/blob"
	"resourcechassis/pkg/domain"
)

const (
	archivePrefix = "audit/"
	keyTimeLayout = "20060102T150405.000000000Z"
)

var _ domain.Notifier = (*ArchiveNotifier)(nil)

// Entry is the archived form of a notice.
type Entry struct {
	Activity    domain.Activity   `json:"activity"`
	Status      string            `json:"status"`
	Description string            `json:"description"`
	Entity      domain.EntityType `json:"entity"`
	RecordID    any               `json:"record_id,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	At          time.Time         `json:"at"`
}

// ArchiveNotifier writes each notice as an immutable JSON object under
// audit/<entity>/. Keys sort chronologically.
type ArchiveNotifier struct {
	store blob.Store
	now   func() time.Time
	newID func() string
}

// NewArchiveNotifier archives into store.
func NewArchiveNotifier(store blob.Store) *ArchiveNotifier {
	return &ArchiveNotifier{store: store, now: time.Now, newID: uuid.NewString}
}

func (a *ArchiveNotifier) put(ctx context.Context, activity domain.Activity, status string, n domain.Notice) error {
	at := n.At
	if at.IsZero() {
		at = a.now()
	}
	at = at.UTC()
	entry := Entry{
		Activity:    activity,
		Status:      status,
		Description: n.Description,
		Entity:      n.Entity,
		RecordID:    n.RecordID,
		UserID:      n.ActorID(),
		At:          at,
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	key := fmt.Sprintf("%s%s/%s-%s.json", archivePrefix, n.Entity, at.Format(keyTimeLayout), a.newID())
	_, err = a.store.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"activity": string(activity),
			"status":   status,
		},
	})
	if err != nil {
		return fmt.Errorf("archive audit entry: %w", err)
	}
	return nil
}

// Entries reads back the archived entries of entity in chronological order.
func (a *ArchiveNotifier) Entries(ctx context.Context, entity domain.EntityType) ([]Entry, error) {
	infos, err := a.store.List(ctx, archivePrefix+string(entity)+"/")
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		_, rc, err := a.store.Get(ctx, info.Key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", info.Key, err)
		}
		var e Entry
		err = json.NewDecoder(rc).Decode(&e)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", info.Key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (a *ArchiveNotifier) CreationSucceeded(ctx context.Context, n domain.Notice) error {
	return a.put(ctx, domain.ActivityCreate, StatusSucceeded, n)
}

func (a *ArchiveNotifier) CreationFailed(ctx context.Context, n domain.Notice) error {
	return a.put(ctx, domain.ActivityCreate, StatusFailed, n)
}

func (a *ArchiveNotifier) UpdateSucceeded(ctx context.Context, n domain.Notice) error {
	return a.put(ctx, domain.ActivityUpdate, StatusSucceeded, n)
}

func (a *ArchiveNotifier) UpdateFailed(ctx context.Context, n domain.Notice) error {
	return a.put(ctx, domain.ActivityUpdate, StatusFailed, n)
}

func (a *ArchiveNotifier) DeletionSucceeded(ctx context.Context, n domain.Notice) error {
	return a.put(ctx, domain.ActivityDelete, StatusSucceeded, n)
}

func (a *ArchiveNotifier) DeletionFailed(ctx context.Context, n domain.Notice) error {
	return a.put(ctx, domain.ActivityDelete, StatusFailed, n)
}
