package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jonathan/idea-forge/internal/types"
)

// sqliteTimeLayout sorts lexically in chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	slug          TEXT NOT NULL,
	run_type      TEXT NOT NULL,
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL,
	iterations    INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TEXT NOT NULL,
	completed_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_slug ON pipeline_runs (slug, started_at);
CREATE TABLE IF NOT EXISTS run_steps (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES pipeline_runs(id) ON DELETE CASCADE,
	iteration     INTEGER NOT NULL,
	agent         TEXT NOT NULL,
	status        TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	artifact_path TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_steps_run ON run_steps (run_id, iteration);
`

// SQLiteStore keeps the run index in a local SQLite file.
type SQLiteStore struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite creates or opens a SQLite database at the given path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Serialize writers; the pipeline records steps from concurrent goroutines.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLiteStore{conn: conn, path: path, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(sqliteTimeLayout)
}

// CreateRun inserts a running record for the run and returns its ID.
func (s *SQLiteStore) CreateRun(ctx context.Context, run types.Run) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, run_id, slug, run_type, mode, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), run.RunID, run.Slug, string(run.RunType), string(run.Mode), RunStatusRunning, s.stamp(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// RecordStep appends a step record to a run.
func (s *SQLiteStore) RecordStep(ctx context.Context, runID uuid.UUID, input *StepInput) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO run_steps (id, run_id, iteration, agent, status, duration_ms, artifact_path, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID.String(), input.Iteration, input.Agent, string(input.Status),
		input.Duration.Milliseconds(), input.ArtifactPath, input.ErrorMessage, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to record step %s/%d: %w", input.Agent, input.Iteration, err)
	}
	return nil
}

// CompleteRun stores the terminal status of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID uuid.UUID, status types.Status, iterations int, errMsg string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, iterations = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(status), iterations, errMsg, s.stamp(), runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

const sqliteRunColumns = `id, run_id, slug, run_type, mode, status, iterations, error_message, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (*Run, error) {
	var (
		r         Run
		id        string
		started   string
		completed sql.NullString
	)
	if err := row.Scan(&id, &r.RunID, &r.Slug, &r.RunType, &r.Mode, &r.Status, &r.Iterations,
		&r.Error, &started, &completed); err != nil {
		return nil, err
	}

	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	if r.StartedAt, err = time.Parse(sqliteTimeLayout, started); err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
	}
	if completed.Valid {
		t, err := time.Parse(sqliteTimeLayout, completed.String)
		if err != nil {
			return nil, fmt.Errorf("invalid completed_at %q: %w", completed.String, err)
		}
		r.CompletedAt = &t
	}
	return &r, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM pipeline_runs WHERE id = ?`, runID.String())
	r, err := scanSQLiteRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns lists runs newest first, optionally for a single slug.
func (s *SQLiteStore) ListRuns(ctx context.Context, slug string, limit int) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM pipeline_runs
		 WHERE (? = '' OR slug = ?)
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`,
		slug, slug, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListSteps lists the steps of a run in iteration order.
func (s *SQLiteStore) ListSteps(ctx context.Context, runID uuid.UUID) ([]Step, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, run_id, iteration, agent, status, duration_ms, artifact_path, error_message, created_at
		 FROM run_steps
		 WHERE run_id = ?
		 ORDER BY iteration, created_at, rowid`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			st             Step
			id, run, stamp string
		)
		if err := rows.Scan(&id, &run, &st.Iteration, &st.Agent, &st.Status, &st.DurationMs,
			&st.ArtifactPath, &st.ErrorMessage, &stamp); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if st.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid step id %q: %w", id, err)
		}
		if st.RunID, err = uuid.Parse(run); err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", run, err)
		}
		if st.CreatedAt, err = time.Parse(sqliteTimeLayout, stamp); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", stamp, err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}
