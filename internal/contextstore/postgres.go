package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check: PostgresStore must implement Store.
var _ Store = (*PostgresStore)(nil)

// ddlContextEntries creates the context log table. Entries are rows rather
// than one rewritten document, which preserves the append-only contract while
// letting several sessions share one database.
const ddlContextEntries = `
CREATE TABLE IF NOT EXISTS context_entries (
    id          BIGSERIAL   PRIMARY KEY,
    session_id  TEXT        NOT NULL,
    producer    TEXT        NOT NULL,
    payload     JSONB       NOT NULL DEFAULT '{}',
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_context_entries_session
    ON context_entries (session_id, id);

CREATE INDEX IF NOT EXISTS idx_context_entries_producer
    ON context_entries (session_id, producer);
`

// PostgresStore keeps a session's context log in a PostgreSQL table.
//
// The in-memory log is authoritative for the life of the process, exactly as
// with [FileStore]: a failed insert is logged and the entry stays visible to
// Entries and Latest. Prior entries for the session are loaded at open so the
// log is durable across restarts under the same id.
type PostgresStore struct {
	sessionID string
	pool      *pgxpool.Pool

	mu      sync.Mutex
	entries []Entry
}

// NewPostgresStore connects to dsn, ensures the schema exists, and loads any
// previously persisted entries for sessionID.
func NewPostgresStore(ctx context.Context, dsn, sessionID string) (*PostgresStore, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("contextstore: session id must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("contextstore: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlContextEntries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("contextstore: migrate schema: %w", err)
	}

	s := &PostgresStore{sessionID: sessionID, pool: pool}
	if err := s.load(ctx); err != nil {
		slog.Warn("context store: load session entries failed, starting empty",
			"session_id", sessionID, "err", err)
	}
	return s, nil
}

// load reads the session's persisted entries in insertion order.
func (s *PostgresStore) load(ctx context.Context) error {
	const q = `
		SELECT producer, payload, recorded_at
		FROM   context_entries
		WHERE  session_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, s.sessionID)
	if err != nil {
		return fmt.Errorf("contextstore: query entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e       Entry
			payload []byte
		)
		if err := row.Scan(&e.Producer, &payload, &e.RecordedAt); err != nil {
			return Entry{}, err
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return Entry{}, err
		}
		return e, nil
	})
	if err != nil {
		return fmt.Errorf("contextstore: scan entries: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Add implements [Store].
func (s *PostgresStore) Add(entry Entry) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		slog.Error("context store: encode payload failed",
			"session_id", s.sessionID, "producer", entry.Producer, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const q = `
		INSERT INTO context_entries (session_id, producer, payload, recorded_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, q, s.sessionID, entry.Producer, payload, entry.RecordedAt); err != nil {
		slog.Error("context store: persist entry failed",
			"session_id", s.sessionID, "producer", entry.Producer, "err", err)
	}
}

// Entries implements [Store].
func (s *PostgresStore) Entries(producer string) []Entry {
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
func (s *PostgresStore) Latest(producer string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  Entry
		found bool
	)
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
func (s *PostgresStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM context_entries WHERE session_id = $1`, s.sessionID); err != nil {
		slog.Error("context store: clear session failed",
			"session_id", s.sessionID, "err", err)
	}
}

// SessionID implements [Store].
func (s *PostgresStore) SessionID() string { return s.sessionID }

// Close releases the connection pool. The store must not be used afterwards.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
