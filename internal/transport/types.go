package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromIsBot    bool
	Text         string // message text, or caption for media messages
	HasMedia     bool   // photo or video attached
	ReplyToID    int    // id of the replied-to message (0 if none)
	IsPrivate    bool
}

type Callback struct {
	ID        string
	FromID    int64
	Username  string
	ChatID    int64
	MessageID int
	Data      string
	IsPrivate bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// InlineButton is one tappable button; pressing it produces a Callback
// update carrying Data.
type InlineButton struct {
	Text string
	Data string
}

type InlineKeyboard struct {
	Rows [][]InlineButton
}

// Row is a convenience constructor for a single-row keyboard.
func Row(buttons ...InlineButton) *InlineKeyboard {
	return &InlineKeyboard{Rows: [][]InlineButton{buttons}}
}

type SendOptions struct {
	ReplyTo  int // reply to this message id (0 = plain send)
	Keyboard *InlineKeyboard
}

// Adapter is the chat platform boundary. Start forwards incoming updates to
// out until Stop is called or ctx is cancelled.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

	// CopyMessage re-sends a stored message (the content payload) to another
	// chat without a forward header. This is the delivery primitive.
	CopyMessage(ctx context.Context, to ChatTarget, from MessageRef) error

	// EditReplyMarkup replaces the inline keyboard on an existing message;
	// a nil keyboard removes it.
	EditReplyMarkup(ctx context.Context, ref MessageRef, kb *InlineKeyboard) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	SendTyping(ctx context.Context, to ChatTarget) error
}
