package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/idea-forge/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id            UUID PRIMARY KEY,
	run_id        TEXT NOT NULL,
	slug          TEXT NOT NULL,
	run_type      TEXT NOT NULL,
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL,
	iterations    INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	started_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_slug ON pipeline_runs (slug, started_at DESC);
CREATE TABLE IF NOT EXISTS run_steps (
	id            UUID PRIMARY KEY,
	run_id        UUID NOT NULL REFERENCES pipeline_runs(id) ON DELETE CASCADE,
	iteration     INTEGER NOT NULL,
	agent         TEXT NOT NULL,
	status        TEXT NOT NULL,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	artifact_path TEXT,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_run_steps_run ON run_steps (run_id, iteration);
`

// PostgresStore wraps a PostgreSQL connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database and applies the schema
func Connect(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// CreateRun inserts a running record for the run and returns its ID
func (s *PostgresStore) CreateRun(ctx context.Context, run types.Run) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, run_id, slug, run_type, mode, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, run.RunID, run.Slug, string(run.RunType), string(run.Mode), RunStatusRunning,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// RecordStep appends a step record to a run
func (s *PostgresStore) RecordStep(ctx context.Context, runID uuid.UUID, input *StepInput) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_steps (id, run_id, iteration, agent, status, duration_ms, artifact_path, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))`,
		uuid.New(), runID, input.Iteration, input.Agent, string(input.Status),
		input.Duration.Milliseconds(), input.ArtifactPath, input.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record step %s/%d: %w", input.Agent, input.Iteration, err)
	}
	return nil
}

// CompleteRun stores the terminal status of a run
func (s *PostgresStore) CompleteRun(ctx context.Context, runID uuid.UUID, status types.Status, iterations int, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs
		 SET status = $1, iterations = $2, error_message = NULLIF($3, ''), completed_at = NOW()
		 WHERE id = $4`,
		string(status), iterations, errMsg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

const pgRunColumns = `id, run_id, slug, run_type, mode, status, iterations,
	COALESCE(error_message, ''), started_at, completed_at`

// GetRun retrieves a run by ID
func (s *PostgresStore) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var r Run
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM pipeline_runs WHERE id = $1`, runID,
	).Scan(&r.ID, &r.RunID, &r.Slug, &r.RunType, &r.Mode, &r.Status, &r.Iterations,
		&r.Error, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &r, nil
}

// ListRuns lists runs newest first, optionally for a single slug
func (s *PostgresStore) ListRuns(ctx context.Context, slug string, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM pipeline_runs
		 WHERE ($1 = '' OR slug = $1)
		 ORDER BY started_at DESC
		 LIMIT $2`,
		slug, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RunID, &r.Slug, &r.RunType, &r.Mode, &r.Status, &r.Iterations,
			&r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListSteps lists the steps of a run in iteration order
func (s *PostgresStore) ListSteps(ctx context.Context, runID uuid.UUID) ([]Step, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, iteration, agent, status, duration_ms,
		        COALESCE(artifact_path, ''), COALESCE(error_message, ''), created_at
		 FROM run_steps
		 WHERE run_id = $1
		 ORDER BY iteration, created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.ID, &st.RunID, &st.Iteration, &st.Agent, &st.Status, &st.DurationMs,
			&st.ArtifactPath, &st.ErrorMessage, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}
