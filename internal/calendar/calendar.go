package calendar

import (
	"context"
	"sync"
	"time"

	"adventbot/pkg/logx"
)

// Calendar owns the scheduled-post collection and the delivery log.
//
// The stored collection, sorted by RunAt, is the single source of
// scheduling truth; the delivery log only filters it, never alters it.
// Mutations (Schedule, MarkDelivered) are serialized by an internal mutex
// so concurrent submissions cannot race to the same date.
type Calendar struct {
	mu    sync.Mutex
	store Store
	win   Window
	log   logx.Logger
}

func New(win Window, store Store, log logx.Logger) *Calendar {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Calendar{store: store, win: win, log: log}
}

func (c *Calendar) Window() Window { return c.win }

// Schedule books the earliest open date in the window for the given
// content. Returns ErrCalendarFull when no date is open.
func (c *Calendar) Schedule(ctx context.Context, text string, messageID int) (ScheduledPost, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	posts, err := c.store.ListPosts(ctx)
	if err != nil {
		return ScheduledPost{}, err
	}
	booked := make(map[string]bool, len(posts))
	for _, p := range posts {
		booked[c.win.DateKey(p.RunAt)] = true
	}

	slot, ok := NextOpenDate(c.win, booked)
	if !ok {
		return ScheduledPost{}, ErrCalendarFull
	}

	post := ScheduledPost{RunAt: slot, Text: text, MessageID: messageID}
	if err := c.store.InsertPost(ctx, post); err != nil {
		return ScheduledPost{}, err
	}
	c.log.Info("post scheduled",
		logx.Time("run_at", post.RunAt),
		logx.Int("message_id", post.MessageID),
		logx.Int("booked_dates", len(booked)+1),
	)
	return post, nil
}

// Due returns every post whose release time has passed and that has no
// delivery-log entry, ordered by RunAt ascending. Pure query, safe to call
// repeatedly.
func (c *Calendar) Due(ctx context.Context, now time.Time) ([]ScheduledPost, error) {
	posts, err := c.store.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	delivered, err := c.deliveredSet(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]ScheduledPost, 0, len(posts))
	for _, p := range posts {
		if p.RunAt.After(now) {
			continue
		}
		if delivered[p.RunAt.Unix()] {
			continue
		}
		due = append(due, p)
	}
	return due, nil
}

// MarkDelivered records that the broadcast for runAt has been fully
// attempted. Idempotent: marking twice is a no-op, not an error.
func (c *Calendar) MarkDelivered(ctx context.Context, runAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.AppendDelivered(ctx, runAt)
}

// WindowComplete reports whether every date in the window is booked.
func (c *Calendar) WindowComplete(ctx context.Context) (bool, error) {
	posts, err := c.store.ListPosts(ctx)
	if err != nil {
		return false, err
	}
	booked := make(map[string]bool, len(posts))
	for _, p := range posts {
		booked[c.win.DateKey(p.RunAt)] = true
	}
	return len(booked) >= c.win.Days(), nil
}

// PostForDate returns the post booked on day's calendar date, if any.
func (c *Calendar) PostForDate(ctx context.Context, day time.Time) (ScheduledPost, bool, error) {
	posts, err := c.store.ListPosts(ctx)
	if err != nil {
		return ScheduledPost{}, false, err
	}
	key := c.win.DateKey(day)
	for _, p := range posts {
		if c.win.DateKey(p.RunAt) == key {
			return p, true, nil
		}
	}
	return ScheduledPost{}, false, nil
}

func (c *Calendar) deliveredSet(ctx context.Context) (map[int64]bool, error) {
	ts, err := c.store.ListDelivered(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(ts))
	for _, t := range ts {
		set[t.Unix()] = true
	}
	return set, nil
}
