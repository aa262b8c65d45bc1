package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"adventbot/internal/calendar"
	"adventbot/internal/directory"
	"adventbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files under the configured directory:
//   - posts.tsv                  (post table, atomic rewrite on insert)
//   - delivered.log              (append-only RFC3339 lines)
//   - subscribers.journal.jsonl  (append-only journal)
//   - subscribers.snapshot.json  (periodic snapshot)
//   - welcome_post.json
//
// The subscriber journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	dir string

	posts []calendar.ScheduledPost

	deliveredFile *os.File
	delivered     map[int64]bool // unix seconds

	subsJournalFile *os.File
	subs            map[int64]directory.Subscriber
	subWrites       int
}

const (
	postsFileName        = "posts.tsv"
	deliveredFileName    = "delivered.log"
	subsJournalFileName  = "subscribers.journal.jsonl"
	subsSnapshotFileName = "subscribers.snapshot.json"
	welcomeFileName      = "welcome_post.json"

	postsHeader       = "run_at\ttext\tmessage_id"
	subCompactEvery   = 200
	welcomeFilePerm   = 0o600
	storageDirPerm    = 0o755
	appendOpenFlags   = os.O_CREATE | os.O_APPEND | os.O_WRONLY
	journalOpenFlags  = os.O_CREATE | os.O_APPEND | os.O_RDWR
	snapshotOpenFlags = os.O_CREATE | os.O_TRUNC | os.O_WRONLY
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, storageDirPerm); err != nil {
		return nil, err
	}

	posts, err := loadPosts(filepath.Join(dir, postsFileName))
	if err != nil {
		return nil, err
	}

	delivered, err := loadDelivered(filepath.Join(dir, deliveredFileName))
	if err != nil {
		return nil, err
	}
	df, err := os.OpenFile(filepath.Join(dir, deliveredFileName), appendOpenFlags, welcomeFilePerm)
	if err != nil {
		return nil, err
	}

	subs := map[int64]directory.Subscriber{}
	_ = loadSubsSnapshot(filepath.Join(dir, subsSnapshotFileName), subs)
	_ = replaySubsJournal(filepath.Join(dir, subsJournalFileName), subs)
	jf, err := os.OpenFile(filepath.Join(dir, subsJournalFileName), journalOpenFlags, welcomeFilePerm)
	if err != nil {
		_ = df.Close()
		return nil, err
	}

	return &fileStore{
		log:             log,
		dir:             dir,
		posts:           posts,
		deliveredFile:   df,
		delivered:       delivered,
		subsJournalFile: jf,
		subs:            subs,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.deliveredFile != nil {
		err1 = s.deliveredFile.Close()
		s.deliveredFile = nil
	}
	if s.subsJournalFile != nil {
		err2 = s.subsJournalFile.Close()
		s.subsJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// ---- posts ----

func (s *fileStore) ListPosts(ctx context.Context) ([]calendar.ScheduledPost, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]calendar.ScheduledPost(nil), s.posts...)
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out, nil
}

func (s *fileStore) InsertPost(ctx context.Context, p calendar.ScheduledPost) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(append([]calendar.ScheduledPost(nil), s.posts...), p)
	sort.Slice(next, func(i, j int) bool { return next[i].RunAt.Before(next[j].RunAt) })

	if err := writePosts(filepath.Join(s.dir, postsFileName), next); err != nil {
		return err
	}
	s.posts = next
	return nil
}

func loadPosts(path string) ([]calendar.ScheduledPost, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []calendar.ScheduledPost
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "run_at\t") {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		runAt, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			continue
		}
		msgID, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		out = append(out, calendar.ScheduledPost{RunAt: runAt, Text: parts[1], MessageID: msgID})
	}
	return out, sc.Err()
}

func writePosts(path string, posts []calendar.ScheduledPost) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, snapshotOpenFlags, welcomeFilePerm)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, postsHeader)
	for _, p := range posts {
		fmt.Fprintf(w, "%s\t%s\t%d\n", p.RunAt.Format(time.RFC3339), sanitizeTSV(p.Text), p.MessageID)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// sanitizeTSV keeps captions one-line so the table stays parseable.
func sanitizeTSV(s string) string {
	r := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")
	return r.Replace(s)
}

// ---- delivery log ----

func (s *fileStore) AppendDelivered(ctx context.Context, runAt time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveredFile == nil {
		return ErrClosed
	}
	if s.delivered[runAt.Unix()] {
		return nil
	}
	// Single Write call so the append is atomic on POSIX filesystems.
	if _, err := s.deliveredFile.WriteString(runAt.Format(time.RFC3339) + "\n"); err != nil {
		return err
	}
	s.delivered[runAt.Unix()] = true
	return nil
}

func (s *fileStore) ListDelivered(ctx context.Context) ([]time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, 0, len(s.delivered))
	for sec := range s.delivered {
		out = append(out, time.Unix(sec, 0))
	}
	return out, nil
}

func loadDelivered(path string) (map[int64]bool, error) {
	set := map[int64]bool{}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, line)
		if err != nil {
			// A torn tail write is tolerated; everything before it counts.
			continue
		}
		set[t.Unix()] = true
	}
	return set, sc.Err()
}

// ---- subscribers ----

type subRecord struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Status   string `json:"status"`
}

func (s *fileStore) UpsertSubscriber(ctx context.Context, sub directory.Subscriber) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subsJournalFile == nil {
		return ErrClosed
	}

	enc := json.NewEncoder(s.subsJournalFile)
	if err := enc.Encode(subRecord{ID: sub.ID, Username: sub.Username, Status: string(sub.Status)}); err != nil {
		return err
	}
	s.subs[sub.ID] = sub

	s.subWrites++
	if s.subWrites%subCompactEvery == 0 {
		if err := s.compactSubsLocked(); err != nil {
			s.log.Debug("subscriber journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetSubscriber(ctx context.Context, id int64) (directory.Subscriber, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	return sub, ok, nil
}

func (s *fileStore) ActiveSubscriberIDs(ctx context.Context) ([]int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.subs))
	for id, sub := range s.subs {
		if sub.Status == directory.StatusActive {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func loadSubsSnapshot(path string, into map[int64]directory.Subscriber) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []subRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return err
	}
	for _, r := range records {
		into[r.ID] = directory.Subscriber{ID: r.ID, Username: r.Username, Status: directory.Status(r.Status)}
	}
	return nil
}

func replaySubsJournal(path string, into map[int64]directory.Subscriber) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r subRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		into[r.ID] = directory.Subscriber{ID: r.ID, Username: r.Username, Status: directory.Status(r.Status)}
	}
	return sc.Err()
}

func (s *fileStore) compactSubsLocked() error {
	records := make([]subRecord, 0, len(s.subs))
	for _, sub := range s.subs {
		records = append(records, subRecord{ID: sub.ID, Username: sub.Username, Status: string(sub.Status)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	snapPath := filepath.Join(s.dir, subsSnapshotFileName)
	tmp := snapPath + ".tmp"
	f, err := os.OpenFile(tmp, snapshotOpenFlags, welcomeFilePerm)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, snapPath); err != nil {
		return err
	}

	// Truncate the journal; its content now lives in the snapshot.
	if err := s.subsJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.subsJournalFile.Seek(0, io.SeekEnd)
	return err
}

// ---- welcome post ----

func (s *fileStore) SaveWelcomePost(ctx context.Context, p WelcomePost) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, welcomeFileName)
	tmp := path + ".tmp"
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, welcomeFilePerm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) LoadWelcomePost(ctx context.Context) (WelcomePost, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(filepath.Join(s.dir, welcomeFileName))
	if errors.Is(err, os.ErrNotExist) {
		return WelcomePost{}, false, nil
	}
	if err != nil {
		return WelcomePost{}, false, err
	}
	var p WelcomePost
	if err := json.Unmarshal(b, &p); err != nil {
		return WelcomePost{}, false, err
	}
	if p.MessageID == 0 {
		return WelcomePost{}, false, nil
	}
	return p, true, nil
}
