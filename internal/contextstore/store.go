// Package contextstore provides the append-only, per-session log of analyzer
// outputs that downstream consumers read.
//
// Every analyzer that produces a result for a call records it here as an
// [Entry] under its producer name. Entries are never mutated or deleted once
// written (short of a full-session [Store.Clear]); the store exclusively owns
// the ordered log, and analyzers are producers only.
//
// Two backends are provided: [FileStore] persists the full log to one JSON
// file per session id (the default), and [PostgresStore] keeps the same
// contract in a PostgreSQL table for deployments that already run one.
package contextstore

import "time"

// Entry is one immutable record in a session's context log.
type Entry struct {
	// Producer is the name of the component that wrote this entry,
	// e.g. "EmotionAnalysisTool".
	Producer string `json:"producer"`

	// Payload is the structured data the producer recorded.
	Payload map[string]any `json:"payload"`

	// RecordedAt is when the entry was appended.
	RecordedAt time.Time `json:"recorded_at"`
}

// Store is the append-only context log for one session.
//
// Implementations must serialise mutations so that concurrent appends cannot
// interleave persisted writes, and must keep the in-memory log authoritative
// when persistence fails: a failed write is logged, never surfaced as a lost
// entry.
type Store interface {
	// Add appends entry to the log and persists the full log. The in-memory
	// append always succeeds; persistence failures are logged and the entry
	// remains visible to Entries and Latest for the rest of the process.
	Add(entry Entry)

	// Entries returns all entries in insertion order. When producer is
	// non-empty the result is filtered to that producer, preserving order.
	Entries(producer string) []Entry

	// Latest returns the entry with the maximum RecordedAt among the named
	// producer's entries, last-inserted winning ties. The second return is
	// false when the producer has no entries.
	Latest(producer string) (Entry, bool)

	// Clear discards all entries and persists the empty state.
	Clear()

	// SessionID returns the session this store belongs to.
	SessionID() string
}
