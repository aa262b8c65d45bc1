package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adventbot/internal/calendar"
	"adventbot/internal/directory"
	"adventbot/internal/storage"
	"adventbot/internal/transport"
	"adventbot/pkg/logx"
)

func (b *Bot) handleStart(ctx context.Context, m *transport.Message) {
	if !m.IsPrivate || m.FromIsBot {
		return
	}

	sub, found, err := b.subs.Get(ctx, m.FromID)
	if err != nil {
		b.log.Error("subscriber lookup failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		return
	}
	if found && sub.Status == directory.StatusActive {
		b.send(ctx, m.ChatID, fmt.Sprintf(textAlreadyActive, b.cfg.PublishClock), nil)
		return
	}

	if err := b.subs.Upsert(ctx, m.FromID, m.FromUsername, directory.StatusActive); err != nil {
		b.log.Error("subscribe failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		return
	}

	if found && sub.Status == directory.StatusStopped {
		b.typing(ctx, m.ChatID, 5*time.Second)
		b.send(ctx, m.ChatID, fmt.Sprintf(textWelcomeBack, b.cfg.PublishClock), nil)
		return
	}

	b.send(ctx, m.ChatID, introText(b.now().In(b.cfg.Location), b.cfg.PublishClock), nil)
	b.typing(ctx, m.ChatID, 10*time.Second)

	kb := transport.Row(
		transport.InlineButton{Text: btnWelcomeYes, Data: cbWelcomeYes},
		transport.InlineButton{Text: btnWelcomeYes2, Data: cbWelcomeYes},
	)
	if _, err := b.send(ctx, m.ChatID, textWelcomeOffer, &transport.SendOptions{Keyboard: kb}); err != nil {
		return
	}
	b.tracker.SetDialog(m.FromID, StateAwaitWelcomeConfirm)
}

func (b *Bot) handleStop(ctx context.Context, m *transport.Message) {
	if !m.IsPrivate {
		return
	}

	sub, found, err := b.subs.Get(ctx, m.FromID)
	if err != nil {
		b.log.Error("subscriber lookup failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		return
	}
	if !found || sub.Status != directory.StatusActive {
		b.typing(ctx, m.ChatID, 2*time.Second)
		b.send(ctx, m.ChatID, textAlreadyStopped, nil)
		return
	}

	if err := b.subs.Upsert(ctx, m.FromID, m.FromUsername, directory.StatusStopped); err != nil {
		b.log.Error("unsubscribe failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		return
	}
	b.typing(ctx, m.ChatID, 2*time.Second)
	b.send(ctx, m.ChatID, textStopped, nil)
}

func (b *Bot) handleID(ctx context.Context, m *transport.Message) {
	text := fmt.Sprintf("Chat ID: %d", m.ChatID)
	if m.IsPrivate {
		text += fmt.Sprintf("\nYour user ID: %d", m.FromID)
	}
	b.send(ctx, m.ChatID, text, nil)
}

// handlePrompt answers /set and /init: send the prompt and remember its
// message id so the admin's media reply can be matched back to it.
func (b *Bot) handlePrompt(ctx context.Context, m *transport.Message, kind PromptKind, prompt string) {
	if m.ChatID != b.cfg.AdminChatID {
		return
	}
	ref, err := b.send(ctx, m.ChatID, prompt, &transport.SendOptions{ReplyTo: m.ID})
	if err != nil {
		return
	}
	b.tracker.AddPrompt(ref.MessageID, kind)
}

// handleAdminReply accepts the content for a pending prompt. The replied-to
// message decides whether it becomes the welcome post or a calendar slot.
func (b *Bot) handleAdminReply(ctx context.Context, m *transport.Message) {
	kind, ok := b.tracker.Prompt(m.ReplyToID)
	if !ok {
		return
	}
	if !m.HasMedia {
		b.send(ctx, m.ChatID, textNeedMedia, &transport.SendOptions{ReplyTo: m.ID})
		return
	}

	switch kind {
	case PromptWelcome:
		if err := b.welcome.SaveWelcomePost(ctx, storage.WelcomePost{MessageID: m.ID, Text: m.Text}); err != nil {
			b.log.Error("saving welcome post failed", logx.Err(err))
			return
		}
		b.tracker.ConsumePrompt(m.ReplyToID)
		b.send(ctx, m.ChatID, textWelcomeSaved, &transport.SendOptions{ReplyTo: m.ID})

	case PromptSchedule:
		post, err := b.cal.Schedule(ctx, m.Text, m.ID)
		if errors.Is(err, calendar.ErrCalendarFull) {
			b.send(ctx, m.ChatID, textCalendarFull, &transport.SendOptions{ReplyTo: m.ID})
			return
		}
		if err != nil {
			b.log.Error("scheduling failed", logx.Err(err))
			return
		}
		b.tracker.ConsumePrompt(m.ReplyToID)
		b.send(ctx, m.ChatID,
			fmt.Sprintf(textScheduled, post.RunAt.In(b.cfg.Location).Format(slotDateFormat), b.cfg.PublishClock),
			&transport.SendOptions{ReplyTo: m.ID})

		full, err := b.cal.WindowComplete(ctx)
		if err != nil {
			b.log.Error("window check failed", logx.Err(err))
			return
		}
		if full {
			b.send(ctx, b.cfg.AdminChatID, textCalendarDone, nil)
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *transport.Callback) {
	if err := b.adapter.AnswerCallback(ctx, cb.ID, ""); err != nil {
		b.log.Debug("callback ack failed", logx.Err(err))
	}
	if !cb.IsPrivate {
		return
	}

	state := b.tracker.Dialog(cb.FromID)
	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}

	switch {
	case state == StateAwaitWelcomeConfirm && cb.Data == cbWelcomeYes:
		b.clearKeyboard(ctx, ref)
		b.typing(ctx, cb.ChatID, 5*time.Second)
		b.sendWelcomePost(ctx, cb.ChatID)
		b.typing(ctx, cb.ChatID, 10*time.Second)
		kb := transport.Row(
			transport.InlineButton{Text: btnFinalYes, Data: cbFinalYes},
			transport.InlineButton{Text: btnFinalNo, Data: cbFinalNo},
		)
		if _, err := b.send(ctx, cb.ChatID, textFinalOffer, &transport.SendOptions{Keyboard: kb}); err != nil {
			return
		}
		b.tracker.SetDialog(cb.FromID, StateAwaitFinalConfirm)

	case state == StateAwaitFinalConfirm && cb.Data == cbFinalYes:
		b.clearKeyboard(ctx, ref)
		b.typing(ctx, cb.ChatID, 5*time.Second)
		b.send(ctx, cb.ChatID, fmt.Sprintf(textFinalYes, b.cfg.PublishClock), nil)
		b.tracker.SetDialog(cb.FromID, StateNone)

	case state == StateAwaitFinalConfirm && cb.Data == cbFinalNo:
		b.clearKeyboard(ctx, ref)
		b.typing(ctx, cb.ChatID, 5*time.Second)
		if err := b.subs.Upsert(ctx, cb.FromID, cb.Username, directory.StatusStopped); err != nil {
			b.log.Error("unsubscribe failed", logx.Int64("user_id", cb.FromID), logx.Err(err))
		}
		b.send(ctx, cb.ChatID, textFinalNo, nil)
		b.tracker.SetDialog(cb.FromID, StateNone)
	}
}

func (b *Bot) clearKeyboard(ctx context.Context, ref transport.MessageRef) {
	if err := b.adapter.EditReplyMarkup(ctx, ref, nil); err != nil {
		b.log.Debug("clearing keyboard failed", logx.Err(err))
	}
}

// sendWelcomePost copies the stored welcome post to a new subscriber,
// falling back to a plain message while none is configured.
func (b *Bot) sendWelcomePost(ctx context.Context, chatID int64) {
	post, ok, err := b.welcome.LoadWelcomePost(ctx)
	if err != nil {
		b.log.Error("loading welcome post failed", logx.Err(err))
		return
	}
	if !ok {
		b.log.Warn("welcome post not configured", logx.Int64("chat_id", chatID))
		b.send(ctx, chatID, textWelcomeMissing, nil)
		return
	}
	from := transport.MessageRef{ChatID: b.cfg.AdminChatID, MessageID: post.MessageID}
	if err := b.adapter.CopyMessage(ctx, transport.ChatTarget{ChatID: chatID}, from); err != nil {
		b.log.Warn("welcome post copy failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}
