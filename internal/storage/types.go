package storage

import (
	"context"
	"errors"
	"time"

	"adventbot/internal/calendar"
	"adventbot/internal/directory"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default). Path is the database file.
//   - "file": flat-file backend. Path is a directory holding posts.tsv,
//     delivered.log, the subscriber journal and welcome_post.json.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// WelcomePost is the message sent to new subscribers during onboarding,
// before any calendar slot is due.
type WelcomePost struct {
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
}

// Store is the persistence API shared by the calendar, the subscriber
// directory and the onboarding flow. Both drivers keep single-writer
// discipline: every mutation is either a transaction (sqlite) or an atomic
// append/rewrite under one mutex (file).
type Store interface {
	calendar.Store
	directory.Store

	SaveWelcomePost(ctx context.Context, p WelcomePost) error
	LoadWelcomePost(ctx context.Context) (WelcomePost, bool, error)

	Close() error
}
