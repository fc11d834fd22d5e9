// Package session persists drill sessions and their repetition events
// to sqlite and computes per-session summary statistics. Nothing on the
// per-frame counting path touches this package; recording happens on
// rep events only.
package session

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// busyRetries is how many times a write is retried when sqlite reports
// a locked database before the error is surfaced.
const busyRetries = 5

// Session is one recorded drill session.
type Session struct {
	SessionID      string `json:"session_id"`
	Drill          string `json:"drill"`
	Mode           string `json:"mode"`
	StartUnixNanos int64  `json:"start_unix_nanos"`
	EndUnixNanos   int64  `json:"end_unix_nanos,omitempty"`
	RepCount       int    `json:"rep_count"`
}

// RepEvent is one counted repetition within a session.
type RepEvent struct {
	SessionID string  `json:"session_id"`
	Seq       int     `json:"seq"`
	UnixNanos int64   `json:"unix_nanos"`
	SmoothedY float64 `json:"smoothed_y"`
}

// Store provides sqlite persistence for sessions and rep events.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the session database at path and
// ensures the schema exists. The same schema is also maintained as
// migrations under migrations/ for deployed databases.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			drill             TEXT NOT NULL,
			mode              TEXT NOT NULL,
			start_unix_nanos  BIGINT NOT NULL,
			end_unix_nanos    BIGINT,
			rep_count         BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS rep_events (
			session_id        TEXT NOT NULL,
			seq               BIGINT NOT NULL,
			unix_nanos        BIGINT NOT NULL,
			smoothed_y        DOUBLE NOT NULL,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_rep_events_session
			ON rep_events(session_id, unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations and ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// retryOnBusy retries fn while sqlite reports the database as locked.
func retryOnBusy(fn func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		err = fn()
		if err == nil || !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
	}
	return err
}

// CreateSession inserts a new session row. An empty SessionID is
// replaced with a fresh UUID.
func (s *Store) CreateSession(sess *Session) error {
	if sess.SessionID == "" {
		sess.SessionID = uuid.New().String()
	}
	if sess.StartUnixNanos == 0 {
		sess.StartUnixNanos = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO sessions (session_id, drill, mode, start_unix_nanos, end_unix_nanos, rep_count)
			VALUES (?, ?, ?, ?, NULL, 0)`,
			sess.SessionID, sess.Drill, sess.Mode, sess.StartUnixNanos,
		)
		return err
	})
}

// FinishSession stamps the end time and final count on a session.
func (s *Store) FinishSession(sessionID string, endUnixNanos int64, repCount int) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE sessions SET end_unix_nanos = ?, rep_count = ?
			WHERE session_id = ?`,
			endUnixNanos, repCount, sessionID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("session %s not found", sessionID)
		}
		return nil
	})
}

// RecordRep persists one repetition event.
func (s *Store) RecordRep(ev RepEvent) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO rep_events (session_id, seq, unix_nanos, smoothed_y)
			VALUES (?, ?, ?, ?)`,
			ev.SessionID, ev.Seq, ev.UnixNanos, ev.SmoothedY,
		)
		return err
	})
}

// GetSession returns a single session by id.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT session_id, drill, mode, start_unix_nanos, COALESCE(end_unix_nanos, 0), rep_count
		FROM sessions WHERE session_id = ?`, sessionID)

	var sess Session
	if err := row.Scan(&sess.SessionID, &sess.Drill, &sess.Mode,
		&sess.StartUnixNanos, &sess.EndUnixNanos, &sess.RepCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s not found", sessionID)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns all sessions, most recent first.
func (s *Store) ListSessions() ([]*Session, error) {
	rows, err := s.db.Query(`
		SELECT session_id, drill, mode, start_unix_nanos, COALESCE(end_unix_nanos, 0), rep_count
		FROM sessions ORDER BY start_unix_nanos DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.SessionID, &sess.Drill, &sess.Mode,
			&sess.StartUnixNanos, &sess.EndUnixNanos, &sess.RepCount); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// Reps returns a session's rep events in sequence order.
func (s *Store) Reps(sessionID string) ([]RepEvent, error) {
	rows, err := s.db.Query(`
		SELECT session_id, seq, unix_nanos, smoothed_y
		FROM rep_events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query rep events: %w", err)
	}
	defer rows.Close()

	var events []RepEvent
	for rows.Next() {
		var ev RepEvent
		if err := rows.Scan(&ev.SessionID, &ev.Seq, &ev.UnixNanos, &ev.SmoothedY); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
