package config

// Config is the root configuration document.
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "1m").
// Dates are "YYYY-MM-DD" and clock fields are "HH:MM".
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Calendar  CalendarConfig  `json:"calendar"`
	Publisher PublisherConfig `json:"publisher"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminChatID is the private chat of the calendar owner. Submission
	// commands and the window-complete notice are restricted to it.
	AdminChatID int64 `json:"admin_chat_id"`

	PollTimeout string `json:"poll_timeout,omitempty"`
}

// CalendarConfig pins the scheduling window. The window is fixed for the
// lifetime of one calendar and never recomputed from delivered state.
type CalendarConfig struct {
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	PublishAt   string `json:"publish_at"`
	Timezone    string `json:"timezone,omitempty"`
}

// PublisherConfig controls the broadcast tick.
//
// Schedule is a cron expression (robfig/cron, standard 5-field or @every
// syntax). Defaults to once a minute.
type PublisherConfig struct {
	Enabled    bool   `json:"enabled"`
	Schedule   string `json:"schedule,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the persistence backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": flat-file backend (posts.tsv + delivered.log + journals)
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}
