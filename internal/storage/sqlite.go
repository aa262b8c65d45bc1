package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"adventbot/internal/calendar"
	"adventbot/internal/directory"
	"adventbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- posts ----

func (s *sqliteStore) ListPosts(ctx context.Context) ([]calendar.ScheduledPost, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_at, text, message_id FROM posts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calendar.ScheduledPost
	for rows.Next() {
		var raw, text string
		var msgID int
		if err := rows.Scan(&raw, &text, &msgID); err != nil {
			return nil, err
		}
		runAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("posts: bad run_at %q: %w", raw, err)
		}
		out = append(out, calendar.ScheduledPost{RunAt: runAt, Text: text, MessageID: msgID})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out, nil
}

func (s *sqliteStore) InsertPost(ctx context.Context, p calendar.ScheduledPost) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(run_at, text, message_id) VALUES(?,?,?)`,
		p.RunAt.Format(time.RFC3339), p.Text, p.MessageID,
	)
	return err
}

// ---- delivery log ----

func (s *sqliteStore) AppendDelivered(ctx context.Context, runAt time.Time) error {
	// INSERT OR IGNORE keeps the append idempotent.
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO delivered(run_at) VALUES(?)`,
		runAt.Format(time.RFC3339),
	)
	return err
}

func (s *sqliteStore) ListDelivered(ctx context.Context) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_at FROM delivered`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("delivered: bad run_at %q: %w", raw, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- subscribers ----

func (s *sqliteStore) UpsertSubscriber(ctx context.Context, sub directory.Subscriber) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(user_id, username, status) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET username=excluded.username, status=excluded.status`,
		sub.ID, nullStr(sub.Username), string(sub.Status),
	)
	return err
}

func (s *sqliteStore) GetSubscriber(ctx context.Context, id int64) (directory.Subscriber, bool, error) {
	var sub directory.Subscriber
	var username sql.NullString
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, status FROM subscribers WHERE user_id = ?`, id,
	).Scan(&sub.ID, &username, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Subscriber{}, false, nil
	}
	if err != nil {
		return directory.Subscriber{}, false, err
	}
	sub.Username = username.String
	sub.Status = directory.Status(status)
	return sub, true, nil
}

func (s *sqliteStore) ActiveSubscriberIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM subscribers WHERE status = ? ORDER BY user_id`, string(directory.StatusActive),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- welcome post ----

func (s *sqliteStore) SaveWelcomePost(ctx context.Context, p WelcomePost) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO welcome_post(id, message_id, text) VALUES(1,?,?)
		 ON CONFLICT(id) DO UPDATE SET message_id=excluded.message_id, text=excluded.text`,
		p.MessageID, p.Text,
	)
	return err
}

func (s *sqliteStore) LoadWelcomePost(ctx context.Context) (WelcomePost, bool, error) {
	var p WelcomePost
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, text FROM welcome_post WHERE id = 1`,
	).Scan(&p.MessageID, &p.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return WelcomePost{}, false, nil
	}
	if err != nil {
		return WelcomePost{}, false, err
	}
	return p, true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
