package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrCalendarFull is returned by Schedule when every date in the window is
// booked. It is a normal terminal condition, not a failure.
var ErrCalendarFull = errors.New("calendar: window is full")

// ScheduledPost is one calendar entry.
//
// RunAt is the only durable identity of a post: it doubles as the
// idempotency key in the delivery log. MessageID points at the stored
// content (the admin-chat message the payload is copied from). Text is the
// caption, kept for audit and logging only.
//
// Posts are immutable once scheduled; the "delivered" fact lives in the
// delivery log, never on the post itself.
type ScheduledPost struct {
	RunAt     time.Time
	Text      string
	MessageID int
}

// Window is the fixed scheduling period: one slot per day between Start and
// End inclusive, each releasing at Hour:Minute in Loc.
type Window struct {
	Start  time.Time // midnight of the first day, in Loc
	End    time.Time // midnight of the last day (inclusive), in Loc
	Hour   int
	Minute int
	Loc    *time.Location
}

// Days returns the number of dates in the window.
// Counted date by date so DST transitions don't skew the result.
func (w Window) Days() int {
	n := 0
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// SlotAt returns the release timestamp for the given day.
func (w Window) SlotAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), w.Hour, w.Minute, 0, 0, w.Loc)
}

// DateKey formats t's calendar date in the window's location. Two
// timestamps on the same local date share a key regardless of clock time.
func (w Window) DateKey(t time.Time) string {
	return t.In(w.Loc).Format("2006-01-02")
}

// Store is the persistence the calendar needs. Implementations must keep
// ListPosts ordered by RunAt ascending and make AppendDelivered an atomic,
// idempotent append.
type Store interface {
	ListPosts(ctx context.Context) ([]ScheduledPost, error)
	InsertPost(ctx context.Context, p ScheduledPost) error

	AppendDelivered(ctx context.Context, runAt time.Time) error
	ListDelivered(ctx context.Context) ([]time.Time, error)
}
