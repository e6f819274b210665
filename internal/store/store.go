// Package store is the session entry log described in SPEC_FULL.md §3/§6:
// a SQLite-backed, append-only log of Session entries (message,
// custom_message, branch_summary, compaction, thinking_level_change,
// model_change, label) forming a tree via parent ids, consumed and produced
// by the agent loop and the compaction orchestrator.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // register sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id      TEXT PRIMARY KEY,
	title   TEXT NOT NULL DEFAULT '',
	created INTEGER NOT NULL,
	updated INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	parent_id  TEXT,
	kind       TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_session_seq ON entries(session_id, seq);
`

const (
	sqliteBusyMaxRetries    = 10
	sqliteBusyBackoffStepMs = 50
	sqliteBusyMaxBackoff    = time.Second
)

// Cache is a SQLite-backed session entry log. The name is kept from the
// teacher's web-result cache this package replaces; it still gates every
// method on a nil receiver being a no-op, matching that package's contract.
type Cache struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens a session log database at the given path.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database. Safe on a nil receiver.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// withBusyRetry retries fn while it fails with SQLITE_BUSY/"database is
// locked", backing off linearly, matching the teacher's
// SaveMessageSync/SaveMessages retry idiom (its sole surviving code path,
// generalized here to any single write instead of being duplicated per
// write method).
func withBusyRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt <= sqliteBusyMaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsSQLiteBusy(err) || attempt == sqliteBusyMaxRetries {
			return err
		}
		backoff := time.Duration((attempt+1)*sqliteBusyBackoffStepMs) * time.Millisecond
		if backoff > sqliteBusyMaxBackoff {
			backoff = sqliteBusyMaxBackoff
		}
		time.Sleep(backoff)
	}
	return err
}

// IsSQLiteBusy reports whether err represents SQLite lock contention.
func IsSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func warnf(err error, msg string) {
	if err != nil {
		log.Warn().Err(err).Msg(msg)
	}
}
