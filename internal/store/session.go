package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaywire/agentcore/internal/agentmsg"
)

// EntryKind discriminates a Session entry per SPEC_FULL.md §6.
type EntryKind string

const (
	EntryMessage             EntryKind = "message"
	EntryCustomMessage       EntryKind = "custom_message"
	EntryBranchSummary       EntryKind = "branch_summary"
	EntryCompaction          EntryKind = "compaction"
	EntryThinkingLevelChange EntryKind = "thinking_level_change"
	EntryModelChange         EntryKind = "model_change"
	EntryLabel               EntryKind = "label"
)

// CompactionDetails is the {readFiles, modifiedFiles} pair recorded on a
// compaction entry.
type CompactionDetails struct {
	ReadFiles     []string `json:"readFiles,omitempty"`
	ModifiedFiles []string `json:"modifiedFiles,omitempty"`
}

// SessionEntry is one node of the session's entry tree. Only the fields
// relevant to Kind are populated; see SPEC_FULL.md §6 for the per-kind
// shape.
type SessionEntry struct {
	ID        string
	SessionID string
	ParentID  string
	Kind      EntryKind
	Seq       int64
	CreatedAt time.Time

	// EntryMessage.
	Message agentmsg.Message

	// EntryCustomMessage / EntryBranchSummary (AgentMessage.Custom payload,
	// or a bare summary string for branch_summary).
	Custom  map[string]any
	Summary string

	// EntryCompaction.
	FirstKeptEntryID string
	TokensBefore     int
	Details          CompactionDetails

	// EntryThinkingLevelChange / EntryModelChange / EntryLabel.
	ThinkingLevel string
	Model         string
	Label         string
}

// IsMessageLike reports whether the entry is a "message" kind: message,
// custom_message, or branch_summary, as opposed to pure metadata (compaction,
// thinking_level_change, model_change, label). A toolResult message entry
// counts as message-like; the cut-point finder's own isValidCutPoint is what
// excludes it.
func (e SessionEntry) IsMessageLike() bool {
	switch e.Kind {
	case EntryMessage, EntryCustomMessage, EntryBranchSummary:
		return true
	default:
		return false
	}
}

// IsMetadata reports whether the entry is a zero-weight annotation the
// cut-point finder may absorb into an adjacent tail (SPEC_FULL.md §4.F step
// 3), rather than a weighed message.
func (e SessionEntry) IsMetadata() bool {
	switch e.Kind {
	case EntryThinkingLevelChange, EntryModelChange, EntryLabel:
		return true
	default:
		return false
	}
}

// entryPayload is the JSON shape stored in the entries.payload column; which
// fields are populated depends on Kind.
type entryPayload struct {
	Message          *agentmsg.Message  `json:"message,omitempty"`
	Custom           map[string]any     `json:"custom,omitempty"`
	Summary          string             `json:"summary,omitempty"`
	FirstKeptEntryID string             `json:"firstKeptEntryId,omitempty"`
	TokensBefore     int                `json:"tokensBefore,omitempty"`
	Details          *CompactionDetails `json:"details,omitempty"`
	ThinkingLevel    string             `json:"thinkingLevel,omitempty"`
	Model            string             `json:"model,omitempty"`
	Label            string             `json:"label,omitempty"`
}

func toPayload(e SessionEntry) entryPayload {
	p := entryPayload{
		Custom:           e.Custom,
		Summary:          e.Summary,
		FirstKeptEntryID: e.FirstKeptEntryID,
		TokensBefore:     e.TokensBefore,
		ThinkingLevel:    e.ThinkingLevel,
		Model:            e.Model,
		Label:            e.Label,
	}
	if e.Kind == EntryMessage {
		msg := e.Message
		p.Message = &msg
	}
	if e.Kind == EntryCompaction {
		d := e.Details
		p.Details = &d
	}
	return p
}

func fromPayload(e *SessionEntry, p entryPayload) {
	if p.Message != nil {
		e.Message = *p.Message
	}
	e.Custom = p.Custom
	e.Summary = p.Summary
	e.FirstKeptEntryID = p.FirstKeptEntryID
	e.TokensBefore = p.TokensBefore
	if p.Details != nil {
		e.Details = *p.Details
	}
	e.ThinkingLevel = p.ThinkingLevel
	e.Model = p.Model
	e.Label = p.Label
}

// CreateSession inserts a new session row with the given id. Safe on a nil
// receiver (no-op).
func (c *Cache) CreateSession(id string) error {
	if c == nil {
		return nil
	}
	now := time.Now().Unix()
	return withBusyRetry(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, err := c.db.Exec(
			"INSERT INTO sessions (id, title, created, updated) VALUES (?, '', ?, ?)",
			id, now, now,
		)
		return err
	})
}

// AppendEntry assigns the entry the next sequence number in its session,
// generates an id if none was supplied, persists it, and returns the
// assigned id. Retries on SQLITE_BUSY, matching the teacher's
// SaveMessageSync contention-retry idiom.
func (c *Cache) AppendEntry(e SessionEntry) (string, error) {
	if c == nil {
		return "", nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payload, err := json.Marshal(toPayload(e))
	if err != nil {
		return "", fmt.Errorf("marshal entry payload: %w", err)
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	appendErr := withBusyRetry(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()

		tx, err := c.db.Begin()
		if err != nil {
			return err
		}

		var maxSeq sql.NullInt64
		if err := tx.QueryRow("SELECT MAX(seq) FROM entries WHERE session_id = ?", e.SessionID).Scan(&maxSeq); err != nil {
			rollback(tx)
			return err
		}
		seq := maxSeq.Int64 + 1

		var parentID sql.NullString
		if e.ParentID != "" {
			parentID = sql.NullString{String: e.ParentID, Valid: true}
		}

		if _, err := tx.Exec(
			`INSERT INTO entries (id, session_id, parent_id, kind, seq, payload, created)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.SessionID, parentID, string(e.Kind), seq, string(payload), createdAt.Unix(),
		); err != nil {
			rollback(tx)
			return err
		}

		if _, err := tx.Exec("UPDATE sessions SET updated = ? WHERE id = ?", time.Now().Unix(), e.SessionID); err != nil {
			rollback(tx)
			return err
		}

		return tx.Commit()
	})
	if appendErr != nil {
		return "", appendErr
	}
	return e.ID, nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		warnf(err, "failed to rollback entry append")
	}
}

// LoadEntries returns every entry for a session in sequence order.
func (c *Cache) LoadEntries(sessionID string) ([]SessionEntry, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(
		`SELECT id, parent_id, kind, seq, payload, created
		 FROM entries WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionEntry
	for rows.Next() {
		var (
			id, kind, payloadJSON string
			parentID              sql.NullString
			seq, created          int64
		)
		if err := rows.Scan(&id, &parentID, &kind, &seq, &payloadJSON, &created); err != nil {
			continue
		}
		entry := SessionEntry{
			ID:        id,
			SessionID: sessionID,
			ParentID:  parentID.String,
			Kind:      EntryKind(kind),
			Seq:       seq,
			CreatedAt: time.Unix(created, 0),
		}
		var p entryPayload
		if err := json.Unmarshal([]byte(payloadJSON), &p); err == nil {
			fromPayload(&entry, p)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DeleteEntriesFrom removes every entry with seq >= fromSeq for a session,
// used by the overflow-trigger policy (SPEC_FULL.md §4.H step 2) to drop the
// failing assistant entry before compacting.
func (c *Cache) DeleteEntriesFrom(sessionID string, fromSeq int64) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"DELETE FROM entries WHERE session_id = ? AND seq >= ?",
		sessionID, fromSeq,
	)
	return err
}

// LatestCompactionEntry returns the most recent compaction entry for a
// session, if any, used to locate boundaryStart (SPEC_FULL.md §4.H
// preparation: "one past the previous compaction entry, else 0").
func (c *Cache) LatestCompactionEntry(sessionID string) (SessionEntry, bool, error) {
	if c == nil {
		return SessionEntry{}, false, nil
	}
	entries, err := c.LoadEntries(sessionID)
	if err != nil {
		return SessionEntry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == EntryCompaction {
			return entries[i], true, nil
		}
	}
	return SessionEntry{}, false, nil
}

// SessionSummary holds info for listing sessions.
type SessionSummary struct {
	ID        string
	Timestamp time.Time
	Preview   string
}

// ListSessions returns sessions ordered by their most recent message entry
// (of any role), newest first.
func (c *Cache) ListSessions() ([]SessionSummary, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT s.id, e.created, e.payload
		FROM sessions s
		JOIN entries e ON e.session_id = s.id
		WHERE e.kind = 'message'
		  AND e.seq = (
		    SELECT MAX(e2.seq) FROM entries e2
		    WHERE e2.session_id = s.id AND e2.kind = 'message'
		  )
		ORDER BY e.created DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var ts int64
		var payloadJSON string
		if err := rows.Scan(&s.ID, &ts, &payloadJSON); err != nil {
			continue
		}
		s.Timestamp = time.Unix(ts, 0)
		var p entryPayload
		if err := json.Unmarshal([]byte(payloadJSON), &p); err == nil && p.Message != nil {
			s.Preview = p.Message.Text()
		}
		if len(s.Preview) > 50 {
			s.Preview = s.Preview[:50]
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionExists returns true if a session with the given id exists.
func (c *Cache) SessionExists(id string) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
