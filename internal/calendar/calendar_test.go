package calendar

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"adventbot/pkg/logx"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu        sync.Mutex
	posts     []ScheduledPost
	delivered map[int64]bool

	appendCount int
}

func newMemStore() *memStore {
	return &memStore{delivered: map[int64]bool{}}
}

func (s *memStore) ListPosts(ctx context.Context) ([]ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]ScheduledPost(nil), s.posts...)
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out, nil
}

func (s *memStore) InsertPost(ctx context.Context, p ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, p)
	return nil
}

func (s *memStore) AppendDelivered(ctx context.Context, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered[runAt.Unix()] {
		return nil
	}
	s.delivered[runAt.Unix()] = true
	s.appendCount++
	return nil
}

func (s *memStore) ListDelivered(ctx context.Context) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, 0, len(s.delivered))
	for sec := range s.delivered {
		out = append(out, time.Unix(sec, 0))
	}
	return out, nil
}

func newTestCalendar(t *testing.T, start, end string) (*Calendar, *memStore) {
	t.Helper()
	st := newMemStore()
	return New(testWindow(t, start, end), st, logx.Nop()), st
}

func TestScheduleFillsWindowInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCalendar(t, "2025-12-03", "2025-12-05")

	wantDates := []string{"2025-12-03", "2025-12-04", "2025-12-05"}
	for i, want := range wantDates {
		p, err := c.Schedule(ctx, "post", 100+i)
		if err != nil {
			t.Fatalf("Schedule #%d: %v", i, err)
		}
		if got := p.RunAt.Format("2006-01-02"); got != want {
			t.Fatalf("Schedule #%d allocated %s, want %s", i, got, want)
		}
		if got := p.RunAt.Format("15:04"); got != "19:00" {
			t.Fatalf("Schedule #%d slot time %s, want 19:00", i, got)
		}
	}

	if _, err := c.Schedule(ctx, "overflow", 999); !errors.Is(err, ErrCalendarFull) {
		t.Fatalf("expected ErrCalendarFull, got %v", err)
	}

	complete, err := c.WindowComplete(ctx)
	if err != nil {
		t.Fatalf("WindowComplete: %v", err)
	}
	if !complete {
		t.Fatal("expected window to be complete")
	}
}

func TestScheduleNoDuplicateDates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, st := newTestCalendar(t, "2025-12-03", "2025-12-12")

	for i := 0; i < 10; i++ {
		if _, err := c.Schedule(ctx, "post", i); err != nil {
			t.Fatalf("Schedule #%d: %v", i, err)
		}
	}

	posts, _ := st.ListPosts(ctx)
	seen := map[string]bool{}
	for _, p := range posts {
		key := p.RunAt.Format("2006-01-02")
		if seen[key] {
			t.Fatalf("date %s allocated twice", key)
		}
		seen[key] = true
	}
}

func TestDueFiltersDeliveredAndFuture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCalendar(t, "2025-12-03", "2025-12-05")

	a, _ := c.Schedule(ctx, "a", 1)
	b, _ := c.Schedule(ctx, "b", 2)
	if _, err := c.Schedule(ctx, "c", 3); err != nil {
		t.Fatalf("Schedule c: %v", err)
	}

	// One second past the first slot: only "a" is due.
	now := a.RunAt.Add(time.Second)
	due, err := c.Due(ctx, now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].MessageID != 1 {
		t.Fatalf("due = %+v, want just post a", due)
	}

	if err := c.MarkDelivered(ctx, a.RunAt); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	due, err = c.Due(ctx, now)
	if err != nil {
		t.Fatalf("Due after mark: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due after mark = %+v, want empty", due)
	}

	// Two slots past: only "b" remains due.
	due, err = c.Due(ctx, b.RunAt.Add(time.Second))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].MessageID != 2 {
		t.Fatalf("due = %+v, want just post b", due)
	}
}

func TestDueOrderedAscending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCalendar(t, "2025-12-03", "2025-12-07")

	for i := 0; i < 5; i++ {
		if _, err := c.Schedule(ctx, "post", i); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	due, err := c.Due(ctx, c.Window().SlotAt(c.Window().End).Add(time.Hour))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 5 {
		t.Fatalf("len(due) = %d, want 5", len(due))
	}
	for i := 1; i < len(due); i++ {
		if !due[i-1].RunAt.Before(due[i].RunAt) {
			t.Fatalf("due not ascending at %d: %v >= %v", i, due[i-1].RunAt, due[i].RunAt)
		}
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, st := newTestCalendar(t, "2025-12-03", "2025-12-05")

	p, _ := c.Schedule(ctx, "a", 1)
	if err := c.MarkDelivered(ctx, p.RunAt); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if err := c.MarkDelivered(ctx, p.RunAt); err != nil {
		t.Fatalf("MarkDelivered twice: %v", err)
	}
	if st.appendCount != 1 {
		t.Fatalf("appendCount = %d, want 1 (second mark must be a no-op)", st.appendCount)
	}
}

func TestPostForDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCalendar(t, "2025-12-03", "2025-12-05")

	p, _ := c.Schedule(ctx, "a", 1)

	got, ok, err := c.PostForDate(ctx, p.RunAt)
	if err != nil || !ok {
		t.Fatalf("PostForDate = %v, %v, %v", got, ok, err)
	}
	if got.MessageID != 1 {
		t.Fatalf("PostForDate message id = %d, want 1", got.MessageID)
	}

	if _, ok, _ := c.PostForDate(ctx, p.RunAt.AddDate(0, 0, 1)); ok {
		t.Fatal("expected no post on an unbooked date")
	}
}

// The walk-through from the design discussion: a three-day window fills
// Dec 3..5, a fourth submission overflows, and delivery marking removes the
// post from the due set.
func TestThreeDayWindowScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCalendar(t, "2025-12-03", "2025-12-05")

	a, err := c.Schedule(ctx, "a", 11)
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	if _, err := c.Schedule(ctx, "b", 12); err != nil {
		t.Fatalf("b: %v", err)
	}
	if _, err := c.Schedule(ctx, "c", 13); err != nil {
		t.Fatalf("c: %v", err)
	}
	if _, err := c.Schedule(ctx, "d", 14); !errors.Is(err, ErrCalendarFull) {
		t.Fatalf("d: got %v, want ErrCalendarFull", err)
	}

	now := a.RunAt.Add(time.Second)
	due, _ := c.Due(ctx, now)
	if len(due) != 1 || due[0].MessageID != 11 {
		t.Fatalf("due = %+v, want just a", due)
	}

	if err := c.MarkDelivered(ctx, a.RunAt); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	due, _ = c.Due(ctx, now)
	if len(due) != 0 {
		t.Fatalf("due after delivery = %+v, want empty", due)
	}
}
