package bot

import "sync"

// PromptKind says what an admin prompt message is waiting for.
type PromptKind string

const (
	PromptSchedule PromptKind = "schedule"
	PromptWelcome  PromptKind = "welcome"
)

// DialogState is a private onboarding dialog's position.
type DialogState string

const (
	StateNone                DialogState = ""
	StateAwaitWelcomeConfirm DialogState = "await_welcome_confirm"
	StateAwaitFinalConfirm   DialogState = "await_final_confirm"
)

// PromptTracker holds short-lived conversation state: which admin prompt
// messages still await a media reply, and where each private onboarding
// dialog stands. All state is in memory; a restart simply forgets
// half-finished dialogs.
type PromptTracker struct {
	mu      sync.Mutex
	prompts map[int]PromptKind    // prompt message id -> kind
	dialogs map[int64]DialogState // user id -> state
}

func NewPromptTracker() *PromptTracker {
	return &PromptTracker{
		prompts: map[int]PromptKind{},
		dialogs: map[int64]DialogState{},
	}
}

func (t *PromptTracker) AddPrompt(messageID int, kind PromptKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompts[messageID] = kind
}

func (t *PromptTracker) Prompt(messageID int) (PromptKind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k, ok := t.prompts[messageID]
	return k, ok
}

// ConsumePrompt removes a prompt once its reply has been accepted.
func (t *PromptTracker) ConsumePrompt(messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.prompts, messageID)
}

func (t *PromptTracker) SetDialog(userID int64, s DialogState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == StateNone {
		delete(t.dialogs, userID)
		return
	}
	t.dialogs[userID] = s
}

func (t *PromptTracker) Dialog(userID int64) DialogState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialogs[userID]
}
