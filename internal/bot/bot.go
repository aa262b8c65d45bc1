// Package bot routes incoming chat updates: subscriber onboarding in
// private chats and calendar administration in the admin chat.
package bot

import (
	"context"
	"strings"
	"time"

	"adventbot/internal/calendar"
	"adventbot/internal/directory"
	"adventbot/internal/storage"
	"adventbot/internal/transport"
	"adventbot/pkg/logx"
)

// Subscribers is the directory slice the router needs.
type Subscribers interface {
	Get(ctx context.Context, id int64) (directory.Subscriber, bool, error)
	Upsert(ctx context.Context, id int64, username string, status directory.Status) error
}

// ContentCalendar is the calendar slice the router needs.
type ContentCalendar interface {
	Schedule(ctx context.Context, text string, messageID int) (calendar.ScheduledPost, error)
	WindowComplete(ctx context.Context) (bool, error)
}

// WelcomeStore persists the post sent to new subscribers during onboarding.
type WelcomeStore interface {
	SaveWelcomePost(ctx context.Context, p storage.WelcomePost) error
	LoadWelcomePost(ctx context.Context) (storage.WelcomePost, bool, error)
}

type Config struct {
	// AdminChatID gates /set, /init and media replies, and is the chat
	// the content messages are copied from.
	AdminChatID int64
	// PublishClock is the daily slot time shown in user-facing copy, e.g. "19:00".
	PublishClock string
	Location     *time.Location
}

type Bot struct {
	cfg     Config
	adapter transport.Adapter
	subs    Subscribers
	cal     ContentCalendar
	welcome WelcomeStore
	tracker *PromptTracker
	log     logx.Logger

	now   func() time.Time
	pause func(ctx context.Context, d time.Duration)
}

func New(cfg Config, adapter transport.Adapter, subs Subscribers, cal ContentCalendar, welcome WelcomeStore, log logx.Logger) *Bot {
	if cfg.PublishClock == "" {
		cfg.PublishClock = "19:00"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		cfg:     cfg,
		adapter: adapter,
		subs:    subs,
		cal:     cal,
		welcome: welcome,
		tracker: NewPromptTracker(),
		log:     log,
		now:     time.Now,
	}
	b.pause = b.sleepPause
	return b
}

// Run consumes updates until ctx is cancelled or the channel closes.
// Updates are handled one at a time; ordering within a chat matters for
// the dialogs.
func (b *Bot) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, up)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			b.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			b.handleCallback(ctx, up.Callback)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *transport.Message) {
	if cmd, ok := parseCommand(m.Text); ok {
		switch cmd {
		case "/start":
			b.handleStart(ctx, m)
		case "/stop":
			b.handleStop(ctx, m)
		case "/id":
			b.handleID(ctx, m)
		case "/set":
			b.handlePrompt(ctx, m, PromptSchedule, textSchedulePrompt)
		case "/init":
			b.handlePrompt(ctx, m, PromptWelcome, textWelcomePrompt)
		}
		return
	}
	if m.ReplyToID != 0 && m.ChatID == b.cfg.AdminChatID {
		b.handleAdminReply(ctx, m)
	}
}

// parseCommand extracts the leading slash command, tolerating the
// @botname suffix used in group chats.
func parseCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd), true
}

// sleepPause shows a typing indicator, then waits. Dialog messages land
// with a human rhythm instead of all at once.
func (b *Bot) sleepPause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (b *Bot) typing(ctx context.Context, chatID int64, d time.Duration) {
	if err := b.adapter.SendTyping(ctx, transport.ChatTarget{ChatID: chatID}); err != nil {
		b.log.Debug("typing indicator failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	b.pause(ctx, d)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	ref, err := b.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt)
	if err != nil {
		b.log.Warn("send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	return ref, err
}
