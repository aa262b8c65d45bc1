package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"adventbot/internal/calendar"
	"adventbot/internal/directory"
	"adventbot/internal/storage"
	"adventbot/internal/transport"
	"adventbot/pkg/logx"
)

const testAdminChat = int64(-100500)

type sentText struct {
	ChatID   int64
	Text     string
	ReplyTo  int
	Keyboard *transport.InlineKeyboard
}

type copyCall struct {
	To   int64
	From transport.MessageRef
}

type fakeAdapter struct {
	mu        sync.Mutex
	nextMsgID int
	texts     []sentText
	copies    []copyCall
	cleared   []transport.MessageRef
	answered  []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	s := sentText{ChatID: to.ChatID, Text: text}
	if opt != nil {
		s.ReplyTo = opt.ReplyTo
		s.Keyboard = opt.Keyboard
	}
	f.texts = append(f.texts, s)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextMsgID}, nil
}

func (f *fakeAdapter) CopyMessage(ctx context.Context, to transport.ChatTarget, from transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, copyCall{To: to.ChatID, From: from})
	return nil
}

func (f *fakeAdapter) EditReplyMarkup(ctx context.Context, ref transport.MessageRef, kb *transport.InlineKeyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kb == nil {
		f.cleared = append(f.cleared, ref)
	}
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, callbackID)
	return nil
}

func (f *fakeAdapter) SendTyping(ctx context.Context, to transport.ChatTarget) error { return nil }

func (f *fakeAdapter) lastText() sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return sentText{}
	}
	return f.texts[len(f.texts)-1]
}

type fakeSubs struct {
	mu   sync.Mutex
	subs map[int64]directory.Subscriber
}

func newFakeSubs() *fakeSubs { return &fakeSubs{subs: map[int64]directory.Subscriber{}} }

func (f *fakeSubs) Get(ctx context.Context, id int64) (directory.Subscriber, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	return s, ok, nil
}

func (f *fakeSubs) Upsert(ctx context.Context, id int64, username string, status directory.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[id] = directory.Subscriber{ID: id, Username: username, Status: status}
	return nil
}

type fakeCal struct {
	mu        sync.Mutex
	scheduled []calendar.ScheduledPost
	full      bool
	slot      time.Time
}

func (f *fakeCal) Schedule(ctx context.Context, text string, messageID int) (calendar.ScheduledPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return calendar.ScheduledPost{}, calendar.ErrCalendarFull
	}
	p := calendar.ScheduledPost{RunAt: f.slot, Text: text, MessageID: messageID}
	f.scheduled = append(f.scheduled, p)
	return p, nil
}

func (f *fakeCal) WindowComplete(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.full, nil
}

type fakeWelcome struct {
	mu   sync.Mutex
	post storage.WelcomePost
	set  bool
}

func (f *fakeWelcome) SaveWelcomePost(ctx context.Context, p storage.WelcomePost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.post, f.set = p, true
	return nil
}

func (f *fakeWelcome) LoadWelcomePost(ctx context.Context) (storage.WelcomePost, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.post, f.set, nil
}

type fixture struct {
	bot     *Bot
	adapter *fakeAdapter
	subs    *fakeSubs
	cal     *fakeCal
	welcome *fakeWelcome
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	adapter := &fakeAdapter{}
	subs := newFakeSubs()
	cal := &fakeCal{slot: time.Date(2025, 12, 3, 19, 0, 0, 0, time.UTC)}
	welcome := &fakeWelcome{}
	b := New(Config{AdminChatID: testAdminChat, PublishClock: "19:00", Location: time.UTC},
		adapter, subs, cal, welcome, logx.Nop())
	b.pause = func(ctx context.Context, d time.Duration) {}
	b.now = func() time.Time { return time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{bot: b, adapter: adapter, subs: subs, cal: cal, welcome: welcome}
}

func privateMsg(userID int64, text string) *transport.Message {
	return &transport.Message{
		ID:        1,
		ChatID:    userID,
		FromID:    userID,
		Text:      text,
		IsPrivate: true,
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		text string
		cmd  string
		ok   bool
	}{
		{"/start", "/start", true},
		{"/START", "/start", true},
		{"/id@my_bot", "/id", true},
		{"  /stop  now", "/stop", true},
		{"hello", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		cmd, ok := parseCommand(tc.text)
		if cmd != tc.cmd || ok != tc.ok {
			t.Errorf("parseCommand(%q) = %q, %v; want %q, %v", tc.text, cmd, ok, tc.cmd, tc.ok)
		}
	}
}

func TestStartNewSubscriber(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, privateMsg(42, "/start"))

	sub, ok, _ := f.subs.Get(ctx, 42)
	if !ok || sub.Status != directory.StatusActive {
		t.Fatalf("subscriber not activated: %+v, %v", sub, ok)
	}
	if len(f.adapter.texts) != 2 {
		t.Fatalf("got %d messages, want intro + offer", len(f.adapter.texts))
	}
	last := f.adapter.lastText()
	if last.Keyboard == nil || len(last.Keyboard.Rows) != 1 || len(last.Keyboard.Rows[0]) != 2 {
		t.Fatalf("offer keyboard missing or malformed: %+v", last.Keyboard)
	}
	if got := f.bot.tracker.Dialog(42); got != StateAwaitWelcomeConfirm {
		t.Fatalf("dialog state = %q, want %q", got, StateAwaitWelcomeConfirm)
	}
}

func TestStartActiveSubscriberShortCircuits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subs.Upsert(ctx, 42, "u", directory.StatusActive)

	f.bot.handleMessage(ctx, privateMsg(42, "/start"))

	if len(f.adapter.texts) != 1 {
		t.Fatalf("got %d messages, want 1", len(f.adapter.texts))
	}
	if got := f.bot.tracker.Dialog(42); got != StateNone {
		t.Fatalf("dialog started for an active subscriber: %q", got)
	}
}

func TestStartReactivatesStoppedSubscriber(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subs.Upsert(ctx, 42, "u", directory.StatusStopped)

	f.bot.handleMessage(ctx, privateMsg(42, "/start"))

	sub, _, _ := f.subs.Get(ctx, 42)
	if sub.Status != directory.StatusActive {
		t.Fatalf("subscriber status = %q, want active", sub.Status)
	}
	if len(f.adapter.texts) != 1 || !strings.Contains(f.adapter.texts[0].Text, "С возвращением") {
		t.Fatalf("welcome-back message missing: %+v", f.adapter.texts)
	}
}

func TestStartIgnoredOutsidePrivateChat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := privateMsg(42, "/start")
	m.IsPrivate = false

	f.bot.handleMessage(context.Background(), m)

	if len(f.adapter.texts) != 0 {
		t.Fatalf("group /start answered: %+v", f.adapter.texts)
	}
}

func TestStopActiveSubscriber(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.subs.Upsert(ctx, 42, "u", directory.StatusActive)

	f.bot.handleMessage(ctx, privateMsg(42, "/stop"))

	sub, _, _ := f.subs.Get(ctx, 42)
	if sub.Status != directory.StatusStopped {
		t.Fatalf("subscriber status = %q, want stopped", sub.Status)
	}
}

func TestIDCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.bot.handleMessage(context.Background(), privateMsg(42, "/id"))

	got := f.adapter.lastText().Text
	if !strings.Contains(got, "Chat ID: 42") || !strings.Contains(got, "user ID: 42") {
		t.Fatalf("/id reply = %q", got)
	}
}

func adminMsg(id int, text string, media bool, replyTo int) *transport.Message {
	return &transport.Message{
		ID:        id,
		ChatID:    testAdminChat,
		FromID:    7,
		Text:      text,
		HasMedia:  media,
		ReplyToID: replyTo,
	}
}

func TestSetPromptAndScheduleFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, adminMsg(1, "/set", false, 0))
	if len(f.adapter.texts) != 1 {
		t.Fatalf("prompt not sent")
	}
	promptID := 1 // first message id handed out by the fake adapter

	// Reply without media is rejected, prompt stays armed.
	f.bot.handleMessage(ctx, adminMsg(5, "just text", false, promptID))
	if !strings.Contains(f.adapter.lastText().Text, "фото или видео") {
		t.Fatalf("media requirement not enforced: %q", f.adapter.lastText().Text)
	}

	f.bot.handleMessage(ctx, adminMsg(6, "caption", true, promptID))
	if len(f.cal.scheduled) != 1 {
		t.Fatalf("post not scheduled")
	}
	if got := f.cal.scheduled[0]; got.MessageID != 6 || got.Text != "caption" {
		t.Fatalf("scheduled %+v", got)
	}
	if !strings.Contains(f.adapter.lastText().Text, "03.12.2025") {
		t.Fatalf("allocated date missing from reply: %q", f.adapter.lastText().Text)
	}

	// Prompt consumed: replying again does nothing.
	before := len(f.cal.scheduled)
	f.bot.handleMessage(ctx, adminMsg(7, "again", true, promptID))
	if len(f.cal.scheduled) != before {
		t.Fatal("consumed prompt accepted a second post")
	}
}

func TestSetIgnoredOutsideAdminChat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.bot.handleMessage(context.Background(), privateMsg(42, "/set"))

	if len(f.adapter.texts) != 0 {
		t.Fatalf("/set answered outside admin chat: %+v", f.adapter.texts)
	}
}

func TestScheduleReportsFullCalendar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.cal.full = true

	f.bot.handleMessage(ctx, adminMsg(1, "/set", false, 0))
	f.bot.handleMessage(ctx, adminMsg(2, "late", true, 1))

	if got := f.adapter.lastText().Text; got != textCalendarFull {
		t.Fatalf("full-calendar reply = %q", got)
	}
}

func TestInitStoresWelcomePost(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, adminMsg(1, "/init", false, 0))
	f.bot.handleMessage(ctx, adminMsg(9, "welcome caption", true, 1))

	if !f.welcome.set {
		t.Fatal("welcome post not saved")
	}
	if f.welcome.post.MessageID != 9 || f.welcome.post.Text != "welcome caption" {
		t.Fatalf("welcome post = %+v", f.welcome.post)
	}
}

func TestOnboardingCallbackFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.welcome.SaveWelcomePost(ctx, storage.WelcomePost{MessageID: 55, Text: "w"})

	f.bot.handleMessage(ctx, privateMsg(42, "/start"))

	f.bot.handleCallback(ctx, &transport.Callback{
		ID: "cb1", FromID: 42, ChatID: 42, MessageID: 2, Data: cbWelcomeYes, IsPrivate: true,
	})
	if len(f.adapter.cleared) != 1 {
		t.Fatal("offer keyboard not cleared")
	}
	if len(f.adapter.copies) != 1 {
		t.Fatal("welcome post not copied")
	}
	if got := f.adapter.copies[0]; got.To != 42 || got.From.ChatID != testAdminChat || got.From.MessageID != 55 {
		t.Fatalf("welcome copy = %+v", got)
	}
	if got := f.bot.tracker.Dialog(42); got != StateAwaitFinalConfirm {
		t.Fatalf("dialog state = %q, want %q", got, StateAwaitFinalConfirm)
	}

	f.bot.handleCallback(ctx, &transport.Callback{
		ID: "cb2", FromID: 42, ChatID: 42, MessageID: 3, Data: cbFinalYes, IsPrivate: true,
	})
	if got := f.bot.tracker.Dialog(42); got != StateNone {
		t.Fatalf("dialog not finished: %q", got)
	}
	sub, _, _ := f.subs.Get(ctx, 42)
	if sub.Status != directory.StatusActive {
		t.Fatalf("subscriber status = %q, want active", sub.Status)
	}
}

func TestOnboardingDeclineUnsubscribes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleMessage(ctx, privateMsg(42, "/start"))
	f.bot.handleCallback(ctx, &transport.Callback{
		ID: "cb1", FromID: 42, ChatID: 42, MessageID: 2, Data: cbWelcomeYes, IsPrivate: true,
	})
	f.bot.handleCallback(ctx, &transport.Callback{
		ID: "cb2", FromID: 42, ChatID: 42, MessageID: 3, Data: cbFinalNo, IsPrivate: true,
	})

	sub, _, _ := f.subs.Get(ctx, 42)
	if sub.Status != directory.StatusStopped {
		t.Fatalf("subscriber status = %q, want stopped", sub.Status)
	}
	if got := f.bot.tracker.Dialog(42); got != StateNone {
		t.Fatalf("dialog not finished: %q", got)
	}
}

func TestStaleCallbackIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleCallback(ctx, &transport.Callback{
		ID: "cb1", FromID: 42, ChatID: 42, MessageID: 2, Data: cbFinalYes, IsPrivate: true,
	})

	if len(f.adapter.answered) != 1 {
		t.Fatal("stale callback not acknowledged")
	}
	if len(f.adapter.texts) != 0 {
		t.Fatalf("stale callback produced messages: %+v", f.adapter.texts)
	}
}

func TestRussianPlurals(t *testing.T) {
	t.Parallel()
	cases := []struct {
		n    int
		word string
		verb string
	}{
		{1, "день", "остался"},
		{2, "дня", "осталось"},
		{5, "дней", "осталось"},
		{11, "дней", "осталось"},
		{21, "день", "остался"},
		{24, "дня", "осталось"},
		{111, "дней", "осталось"},
	}
	for _, tc := range cases {
		if got := russianDayWord(tc.n); got != tc.word {
			t.Errorf("russianDayWord(%d) = %q, want %q", tc.n, got, tc.word)
		}
		if got := russianRemainingVerb(tc.n); got != tc.verb {
			t.Errorf("russianRemainingVerb(%d) = %q, want %q", tc.n, got, tc.verb)
		}
	}
}

func TestDaysUntilNewYear(t *testing.T) {
	t.Parallel()
	if got := daysUntilNewYear(time.Date(2025, 12, 31, 10, 0, 0, 0, time.UTC)); got != 1 {
		t.Fatalf("dec 31 = %d days, want 1", got)
	}
	if got := daysUntilNewYear(time.Date(2025, 12, 1, 23, 0, 0, 0, time.UTC)); got != 31 {
		t.Fatalf("dec 1 = %d days, want 31", got)
	}
}
