// Package history persists the outcome of every generate run so the
// CLI can show what was built, with which planner, and how it ended.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one recorded execution.
type Entry struct {
	ID        string
	PlanID    string
	Prompt    string
	Status    string // "committed", "invalid", "failed", "partial_rollback"
	Planner   string // "remote" or "fallback"
	Objects   []string
	Error     string
	CreatedAt time.Time
}

// Store manages the execution-history database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewStore creates or opens the history store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		status TEXT NOT NULL,
		planner TEXT NOT NULL,
		objects_json TEXT,
		error TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one execution outcome.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	objects, err := json.Marshal(e.Objects)
	if err != nil {
		return fmt.Errorf("failed to encode objects: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO executions (id, plan_id, prompt, status, planner, objects_json, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PlanID, e.Prompt, e.Status, e.Planner, string(objects), e.Error, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// Recent returns the n most recent entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, plan_id, prompt, status, planner, objects_json, error, created_at
		FROM executions ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var objects string
		if err := rows.Scan(&e.ID, &e.PlanID, &e.Prompt, &e.Status, &e.Planner,
			&objects, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if objects != "" {
			if err := json.Unmarshal([]byte(objects), &e.Objects); err != nil {
				return nil, fmt.Errorf("failed to decode objects for %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of recorded executions.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM executions`).Scan(&n)
	return n, err
}

// Clear deletes all recorded executions.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM executions`)
	return err
}
