package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HyphaGroup/parker/internal/search"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidRun  = errors.New("invalid run")
)

// Store handles run and solution persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "parker.db")
	// Enable WAL mode and busy timeout for better concurrent access
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		ceiling INTEGER NOT NULL,
		capacity INTEGER NOT NULL,
		mode TEXT NOT NULL,
		cursor_n INTEGER NOT NULL DEFAULT 0,
		cursor_y INTEGER NOT NULL DEFAULT 0,
		cursor_z INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_ceiling ON runs(ceiling, created_at);

	CREATE TABLE IF NOT EXISTS solutions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		z INTEGER NOT NULL,
		found_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (run_id, x, y, z),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_solutions_run ON solutions(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run starting at run.Cursor
func (s *Store) CreateRun(run *Run) error {
	if run.Ceiling == 0 || run.Ceiling > search.MaxCeiling {
		return fmt.Errorf("%w: ceiling %d", ErrInvalidRun, run.Ceiling)
	}
	if run.ID == "" {
		run.ID = "run_" + uuid.New().String()[:8]
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO runs (id, ceiling, capacity, mode, cursor_n, cursor_y, cursor_z, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, int64(run.Ceiling), run.Capacity, run.Mode,
		int64(run.Cursor.N), int64(run.Cursor.Y), int64(run.Cursor.Z),
		run.Status, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

const runColumns = `id, ceiling, capacity, mode, cursor_n, cursor_y, cursor_z, status, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var ceiling, n, y, z int64
	if err := row.Scan(
		&run.ID, &ceiling, &run.Capacity, &run.Mode,
		&n, &y, &z, &run.Status, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return nil, err
	}
	run.Ceiling = uint64(ceiling)
	run.Cursor = search.Cursor{N: uint64(n), Y: uint64(y), Z: uint64(z)}
	return &run, nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently created run for a ceiling
func (s *Store) LatestRun(ceiling uint64) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`
		SELECT `+runColumns+` FROM runs
		WHERE ceiling = ?
		ORDER BY rowid DESC
		LIMIT 1`, int64(ceiling),
	))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveCheckpoint records cursor as the run's resume point. A cursor behind
// the stored one is ignored, so the checkpoint never regresses. It reports
// whether the stored cursor changed.
func (s *Store) SaveCheckpoint(runID string, cursor search.Cursor) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n, y, z int64
	err = tx.QueryRow(`SELECT cursor_n, cursor_y, cursor_z FROM runs WHERE id = ?`, runID).Scan(&n, &y, &z)
	if err == sql.ErrNoRows {
		return false, ErrRunNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	stored := search.Cursor{N: uint64(n), Y: uint64(y), Z: uint64(z)}
	if !stored.Less(cursor) {
		return false, nil
	}

	_, err = tx.Exec(`
		UPDATE runs SET cursor_n = ?, cursor_y = ?, cursor_z = ?, updated_at = ?
		WHERE id = ?`,
		int64(cursor.N), int64(cursor.Y), int64(cursor.Z), time.Now(), runID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return true, nil
}

// SetStatus updates the status of a run
func (s *Store) SetStatus(runID string, status RunStatus) error {
	result, err := s.db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RecordSolution stores a solution for a run. Recording the same triple twice
// is a no-op.
func (s *Store) RecordSolution(runID string, t search.Triple) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO solutions (id, run_id, x, y, z, found_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		"sol_"+uuid.New().String()[:8], runID, int64(t.X), int64(t.Y), int64(t.Z), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert solution: %w", err)
	}
	return nil
}

// ListSolutions returns the solutions of a run in enumeration order
func (s *Store) ListSolutions(runID string) ([]*Solution, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, x, y, z, found_at FROM solutions
		WHERE run_id = ?
		ORDER BY x, y, z`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list solutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var solutions []*Solution
	for rows.Next() {
		var sol Solution
		var x, y, z int64
		if err := rows.Scan(&sol.ID, &sol.RunID, &x, &y, &z, &sol.FoundAt); err != nil {
			return nil, fmt.Errorf("failed to scan solution: %w", err)
		}
		sol.Triple = search.Triple{X: uint64(x), Y: uint64(y), Z: uint64(z)}
		solutions = append(solutions, &sol)
	}
	return solutions, rows.Err()
}
