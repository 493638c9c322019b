// Package store archives terminal workflow states to a local SQLite
// database so that past runs stay auditable: final score, decision, the
// full message log, and the breakdown, all queryable after the fact.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"abvalid/internal/validation"
)

// Run is one archived validation run.
type Run struct {
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	Hypothesis string    `json:"hypothesis"`
	FinalScore float64   `json:"final_score"`
	Decision   string    `json:"decision"`
	Failed     bool      `json:"failed"`
	FailReason string    `json:"fail_reason,omitempty"`
	MessageLog string    `json:"message_log"`
	Breakdown  string    `json:"breakdown,omitempty"`
}

// RunStore persists runs on a single SQLite connection.
type RunStore struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	session_id  TEXT PRIMARY KEY,
	created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	hypothesis  TEXT NOT NULL,
	final_score REAL,
	decision    TEXT,
	failed      INTEGER NOT NULL DEFAULT 0,
	fail_reason TEXT,
	message_log TEXT NOT NULL,
	breakdown   TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`

// Open initializes the archive at path, creating the directory and schema
// as needed.
func Open(path string) (*RunStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set journal_mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close releases the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// SaveRun archives a terminal state. Non-terminal states are rejected: a
// partially-computed run must never look like a result.
func (s *RunStore) SaveRun(state *validation.State) error {
	if !state.Terminal() {
		return fmt.Errorf("store: state %s is not terminal", state.SessionID)
	}

	logJSON, err := json.Marshal(state.Log)
	if err != nil {
		return fmt.Errorf("store: marshal message log: %w", err)
	}

	var (
		finalScore sql.NullFloat64
		decision   sql.NullString
		breakdown  sql.NullString
	)
	if state.Synthesis != nil {
		finalScore = sql.NullFloat64{Float64: state.Synthesis.FinalScore, Valid: true}
		decision = sql.NullString{String: state.Synthesis.Decision, Valid: true}
		b, err := json.Marshal(state.Synthesis)
		if err != nil {
			return fmt.Errorf("store: marshal breakdown: %w", err)
		}
		breakdown = sql.NullString{String: string(b), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs
		 (session_id, hypothesis, final_score, decision, failed, fail_reason, message_log, breakdown)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		state.SessionID, state.Context.Hypothesis, finalScore, decision,
		state.Failed, state.FailReason, string(logJSON), breakdown,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT session_id, created_at, hypothesis, final_score, decision, failed, fail_reason, message_log, breakdown
		 FROM runs ORDER BY created_at DESC, session_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches one archived run by session ID.
func (s *RunStore) GetRun(sessionID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(
		`SELECT session_id, created_at, hypothesis, final_score, decision, failed, fail_reason, message_log, breakdown
		 FROM runs WHERE session_id = ?`, sessionID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: run %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r          Run
		finalScore sql.NullFloat64
		decision   sql.NullString
		failReason sql.NullString
		breakdown  sql.NullString
	)
	err := row.Scan(&r.SessionID, &r.CreatedAt, &r.Hypothesis,
		&finalScore, &decision, &r.Failed, &failReason, &r.MessageLog, &breakdown)
	if err != nil {
		return Run{}, err
	}
	r.FinalScore = finalScore.Float64
	r.Decision = decision.String
	r.FailReason = failReason.String
	r.Breakdown = breakdown.String
	return r, nil
}
