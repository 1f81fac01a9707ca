package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// StateStore keeps crawl runs and their visited URLs in SQLite.
type StateStore struct {
	db *sql.DB
}

// Run is one crawl of a seed URL.
type Run struct {
	RunID      uuid.UUID  `json:"run_id"`
	SeedURL    string     `json:"seed_url"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Records    int        `json:"records"`
	Failures   int        `json:"failures"`
}

// IsFinished returns true once FinishRun has been called for the run.
func (r *Run) IsFinished() bool {
	return r.FinishedAt != nil
}

// NewStateStore creates a new state store with the given database path.
func NewStateStore(dbPath string) (*StateStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Crawl workers record visits concurrently and SQLite has a single writer
	db.SetMaxOpenConns(1)

	store := &StateStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the runs and visited tables if they don't exist.
func (s *StateStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		records INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS visited (
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		visited_at TEXT NOT NULL,
		PRIMARY KEY (run_id, url)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// StartRun records a new run for seedURL.
func (s *StateStore) StartRun(seedURL string) (*Run, error) {
	run := &Run{
		RunID:     uuid.New(),
		SeedURL:   seedURL,
		StartedAt: time.Now().Truncate(0),
	}

	query := "INSERT INTO runs (run_id, seed_url, started_at) VALUES (?, ?, ?)"
	_, err := s.db.Exec(query, run.RunID.String(), run.SeedURL, formatTime(&run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return run, nil
}

// FinishRun stores the outcome of a run.
func (s *StateStore) FinishRun(runID uuid.UUID, records, failures int) error {
	now := time.Now()
	query := `
		UPDATE runs
		SET finished_at = ?, records = ?, failures = ?
		WHERE run_id = ?
	`

	result, err := s.db.Exec(query, formatTime(&now), records, failures, runID.String())
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *StateStore) GetRun(runID uuid.UUID) (*Run, error) {
	query := `
		SELECT run_id, seed_url, started_at, finished_at, records, failures
		FROM runs
		WHERE run_id = ?
	`

	run, err := scanRun(s.db.QueryRow(query, runID.String()))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	return run, nil
}

// ListRuns lists all runs, most recent first.
func (s *StateStore) ListRuns() ([]Run, error) {
	query := `
		SELECT run_id, seed_url, started_at, finished_at, records, failures
		FROM runs
		ORDER BY started_at DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// Visit marks url as visited in a run. It returns true the first time a URL
// is seen.
func (s *StateStore) Visit(runID uuid.UUID, url string) (bool, error) {
	now := time.Now()
	query := "INSERT OR IGNORE INTO visited (run_id, url, visited_at) VALUES (?, ?, ?)"

	result, err := s.db.Exec(query, runID.String(), url, formatTime(&now))
	if err != nil {
		return false, fmt.Errorf("failed to record visit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// VisitedCount returns the number of distinct URLs visited in a run.
func (s *StateStore) VisitedCount(runID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM visited WHERE run_id = ?", runID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visited URLs: %w", err)
	}
	return count, nil
}

// RunVisited is the visited set of a single run.
type RunVisited struct {
	store *StateStore
	runID uuid.UUID
}

// VisitedSet returns the visited set for runID.
func (s *StateStore) VisitedSet(runID uuid.UUID) *RunVisited {
	return &RunVisited{store: s, runID: runID}
}

// Visit marks url as visited and reports whether it is new.
func (v *RunVisited) Visit(url string) (bool, error) {
	return v.store.Visit(v.runID, url)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var runIDStr, seedURL, startedAtStr string
	var finishedAtStr sql.NullString
	var records, failures int

	if err := row.Scan(&runIDStr, &seedURL, &startedAtStr, &finishedAtStr, &records, &failures); err != nil {
		return nil, err
	}

	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run_id: %w", err)
	}

	run := &Run{
		RunID:     runID,
		SeedURL:   seedURL,
		StartedAt: parseTime(startedAtStr),
		Records:   records,
		Failures:  failures,
	}
	if finishedAtStr.Valid {
		t := parseTime(finishedAtStr.String)
		run.FinishedAt = &t
	}

	return run, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
