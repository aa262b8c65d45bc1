package telegram

import (
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "adventbot/internal/transport"
)

func TestClassifySendError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want kit.DeliveryClass
	}{
		{name: "bad token", err: tele.NewError(401, "Unauthorized"), want: kit.DeliveryFatal},
		{name: "competing poller", err: tele.NewError(409, "Conflict: terminated by other getUpdates request"), want: kit.DeliveryFatal},
		{name: "blocked by user", err: tele.ErrBlockedByUser, want: kit.DeliveryRecipient},
		{name: "deactivated user", err: tele.ErrUserIsDeactivated, want: kit.DeliveryRecipient},
		{name: "chat not found", err: tele.ErrChatNotFound, want: kit.DeliveryRecipient},
		{name: "other bad request", err: tele.NewError(400, "Bad Request: message is too long"), want: kit.DeliveryTransient},
		{name: "flood control", err: tele.NewError(429, "Too Many Requests: retry after 30"), want: kit.DeliveryTransient},
		{name: "wrapped telebot error", err: fmt.Errorf("send: %w", tele.ErrBlockedByUser), want: kit.DeliveryRecipient},
		{name: "plain network error", err: errors.New("connection reset by peer"), want: kit.DeliveryTransient},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := classifySendError(tt.err)
			if got == nil {
				t.Fatal("expected non-nil classified error")
			}
			if kit.ClassOf(got) != tt.want {
				t.Fatalf("class = %v, want %v", kit.ClassOf(got), tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("classified error does not wrap original: %v", got)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	t.Parallel()
	if err := classifySendError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
