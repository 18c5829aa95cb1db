// Package audit persists guard decisions and trust grants in SQLite.
//
// The store is strictly best-effort on the hook path: an unreachable or
// corrupt database must never change a permission decision, so write methods
// swallow errors and a nil *Store is a valid no-op receiver.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Level controls how much reaches the events table.
type Level string

const (
	LevelOff     Level = "off"
	LevelActions Level = "actions" // skip allowed events
	LevelAll     Level = "all"
)

// ParseLevel maps a GUARD_LOG_LEVEL value to a Level, defaulting to actions.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "off":
		return LevelOff
	case "all":
		return LevelAll
	default:
		return LevelActions
	}
}

const sessionIDKey = "last_session_id"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	ts TEXT NOT NULL,
	session_id TEXT,
	tool_use_id TEXT,
	category TEXT NOT NULL,
	rule TEXT,
	action TEXT NOT NULL,
	command TEXT,
	detail TEXT
);
CREATE TABLE IF NOT EXISTS trusted_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_name TEXT NOT NULL,
	match_pattern TEXT,
	scope TEXT NOT NULL,
	session_id TEXT,
	created_ts TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session_state (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_ts TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
CREATE UNIQUE INDEX IF NOT EXISTS idx_trust_rule_match_scope
	ON trusted_rules(rule_name, COALESCE(match_pattern, ''), scope);
`

// Store wraps the audit database.
type Store struct {
	mu    sync.Mutex
	db    *sql.DB
	level Level
}

// Open creates or opens the audit database at path, creating the parent
// directory with owner-only permissions.
func Open(path string, level Level) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	created := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		created = true
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=1000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	if created {
		os.Chmod(path, 0o600)
	}
	return &Store{db: db, level: level}, nil
}

// Close releases the database handle. Safe on a nil store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Event is one audit record.
type Event struct {
	EventID   string
	Timestamp string
	SessionID string
	ToolUseID string
	Category  string
	Rule      string
	Action    string
	Command   string
	Detail    string
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// LogEvent appends an event, honoring the configured level. detail is JSON
// encoded when non-nil. Errors are dropped; logging never blocks a decision.
func (s *Store) LogEvent(sessionID, toolUseID, category, rule, action, command string, detail any) {
	if s == nil || s.db == nil {
		return
	}
	if s.level == LevelOff {
		return
	}
	if s.level == LevelActions && action == "allowed" {
		return
	}

	var detailStr sql.NullString
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			detailStr = sql.NullString{String: string(b), Valid: true}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Exec(
		`INSERT INTO events (event_id, ts, session_id, tool_use_id, category, rule, action, command, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), now(), sessionID, toolUseID, category, rule, action, Redact(command), detailStr,
	)
}

// RecentEvents returns the newest n events, newest first.
func (s *Store) RecentEvents(n int) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT event_id, ts, COALESCE(session_id, ''), COALESCE(tool_use_id, ''),
		        category, COALESCE(rule, ''), action, COALESCE(command, ''), COALESCE(detail, '')
		 FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.SessionID, &e.ToolUseID,
			&e.Category, &e.Rule, &e.Action, &e.Command, &e.Detail); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// TrustRule is one trust grant.
type TrustRule struct {
	RuleName     string
	MatchPattern string
	Scope        string
	SessionID    string
	CreatedTS    string
}

// CheckTrust reports whether an ask-rule decision is covered by a trust
// grant. Session-scoped grants require a matching session ID; a match pattern
// is a case-insensitive substring test against the command.
func (s *Store) CheckTrust(ruleName, command, sessionID string) bool {
	if s == nil || s.db == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT COALESCE(match_pattern, ''), scope, COALESCE(session_id, '')
		 FROM trusted_rules WHERE rule_name = ?`, ruleName)
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var pattern, scope, trustSession string
		if err := rows.Scan(&pattern, &scope, &trustSession); err != nil {
			return false
		}
		if scope == "session" && trustSession != sessionID {
			continue
		}
		if pattern != "" && command != "" &&
			!strings.Contains(strings.ToLower(command), strings.ToLower(pattern)) {
			continue
		}
		return true
	}
	return false
}

// AddTrust records a trust grant. sessionID is only stored for session scope.
func (s *Store) AddTrust(ruleName, matchPattern, scope, sessionID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit store unavailable")
	}
	var pattern sql.NullString
	if matchPattern != "" {
		pattern = sql.NullString{String: matchPattern, Valid: true}
	}
	var session sql.NullString
	if scope == "session" && sessionID != "" {
		session = sql.NullString{String: sessionID, Valid: true}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO trusted_rules (rule_name, match_pattern, scope, session_id, created_ts)
		 VALUES (?, ?, ?, ?, ?)`,
		ruleName, pattern, scope, session, now())
	return err
}

// RemoveTrust deletes trust grants for a rule. With hasPattern set, only the
// grant matching matchPattern (empty means the NULL-pattern grant) goes.
// Returns the number of rows removed.
func (s *Store) RemoveTrust(ruleName, matchPattern string, hasPattern bool) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("audit store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var res sql.Result
	var err error
	if hasPattern {
		res, err = s.db.Exec(
			`DELETE FROM trusted_rules WHERE rule_name = ? AND COALESCE(match_pattern, '') = ?`,
			ruleName, matchPattern)
	} else {
		res, err = s.db.Exec(`DELETE FROM trusted_rules WHERE rule_name = ?`, ruleName)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListTrust returns all trust grants, oldest first.
func (s *Store) ListTrust() ([]TrustRule, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT rule_name, COALESCE(match_pattern, ''), scope, COALESCE(session_id, ''), created_ts
		 FROM trusted_rules ORDER BY created_ts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrustRule
	for rows.Next() {
		var r TrustRule
		if err := rows.Scan(&r.RuleName, &r.MatchPattern, &r.Scope, &r.SessionID, &r.CreatedTS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordSession remembers the most recent session ID for the trust CLI.
func (s *Store) RecordSession(sessionID string) {
	if s == nil || s.db == nil || sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Exec(
		`INSERT OR REPLACE INTO session_state (key, value, updated_ts) VALUES (?, ?, ?)`,
		sessionIDKey, sessionID, now())
}

// LastSessionID returns the session ID recorded by the most recent hook run.
func (s *Store) LastSessionID() string {
	if s == nil || s.db == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM session_state WHERE key = ?`, sessionIDKey).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}
