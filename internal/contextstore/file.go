package contextstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Compile-time check: FileStore must implement Store.
var _ Store = (*FileStore)(nil)

// FileStore persists a session's context log to a single JSON file named
// after the session id. The whole log is rewritten on every mutation, there
// is no incremental-append format. Writes go via a temp file and an atomic rename so
// that a crash mid-write can never corrupt previously persisted entries.
//
// All methods are safe for concurrent use.
type FileStore struct {
	sessionID string
	path      string

	mu      sync.Mutex
	entries []Entry
}

// NewFileStore opens (or creates) the context log for sessionID under dir.
// If a persisted file for the session already exists its entries are loaded,
// making the log durable across process restarts under the same id.
//
// Errors are returned only for conditions that prevent the store from ever
// persisting (unusable directory); a missing or unreadable session file
// degrades to an empty log with a logged warning.
func NewFileStore(dir, sessionID string) (*FileStore, error) {
	if sessionID == "" {
		return nil, errors.New("contextstore: session id must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("contextstore: create dir %q: %w", dir, err)
	}

	s := &FileStore{
		sessionID: sessionID,
		path:      filepath.Join(dir, sessionID+".json"),
	}
	s.load()
	return s, nil
}

// load reads previously persisted entries, if any. A decode failure keeps the
// bad file on disk and starts with an empty log so that the operator can
// inspect what went wrong.
func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("context store: read session file failed, starting empty",
				"session_id", s.sessionID, "path", s.path, "err", err)
		}
		return
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("context store: decode session file failed, starting empty",
			"session_id", s.sessionID, "path", s.path, "err", err)
		return
	}
	s.entries = entries
}

// Add implements [Store].
func (s *FileStore) Add(entry Entry) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.persistLocked()
}

// Entries implements [Store].
func (s *FileStore) Entries(producer string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if producer == "" || e.Producer == producer {
			out = append(out, e)
		}
	}
	return out
}

// Latest implements [Store].
func (s *FileStore) Latest(producer string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  Entry
		found bool
	)
	// Later insertions win ties, so ">=" on equal timestamps.
	for _, e := range s.entries {
		if e.Producer != producer {
			continue
		}
		if !found || !e.RecordedAt.Before(best.RecordedAt) {
			best = e
			found = true
		}
	}
	return best, found
}

// Clear implements [Store].
func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.persistLocked()
}

// SessionID implements [Store].
func (s *FileStore) SessionID() string { return s.sessionID }

// persistLocked rewrites the session file with the full log. Must be called
// with s.mu held. Failures are logged; the in-memory log stays authoritative.
func (s *FileStore) persistLocked() {
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		slog.Error("context store: encode session log failed",
			"session_id", s.sessionID, "err", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("context store: write session file failed",
			"session_id", s.sessionID, "path", tmp, "err", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		slog.Error("context store: replace session file failed",
			"session_id", s.sessionID, "path", s.path, "err", err)
		_ = os.Remove(tmp)
	}
}
