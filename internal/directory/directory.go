package directory

import (
	"context"
	"fmt"

	"adventbot/pkg/logx"
)

// Status is a subscriber's delivery eligibility.
type Status string

const (
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
)

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusActive, StatusStopped:
		return Status(raw), nil
	default:
		return "", fmt.Errorf("directory: unknown status %q", raw)
	}
}

type Subscriber struct {
	ID       int64
	Username string
	Status   Status
}

// Store is the persistence the directory needs.
type Store interface {
	UpsertSubscriber(ctx context.Context, s Subscriber) error
	GetSubscriber(ctx context.Context, id int64) (Subscriber, bool, error)
	ActiveSubscriberIDs(ctx context.Context) ([]int64, error)
}

// Directory tracks who receives broadcasts. The broadcast loop takes one
// ActiveIDs snapshot per tick; eligibility changes mid-tick apply from the
// next tick on.
type Directory struct {
	store Store
	log   logx.Logger
}

func New(store Store, log logx.Logger) *Directory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Directory{store: store, log: log}
}

func (d *Directory) Upsert(ctx context.Context, id int64, username string, status Status) error {
	if err := d.store.UpsertSubscriber(ctx, Subscriber{ID: id, Username: username, Status: status}); err != nil {
		return err
	}
	d.log.Debug("subscriber upserted", logx.Int64("user_id", id), logx.String("status", string(status)))
	return nil
}

func (d *Directory) Get(ctx context.Context, id int64) (Subscriber, bool, error) {
	return d.store.GetSubscriber(ctx, id)
}

// ActiveIDs returns the current eligible set. An empty set is a normal
// result, not an error.
func (d *Directory) ActiveIDs(ctx context.Context) ([]int64, error) {
	ids, err := d.store.ActiveSubscriberIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}
