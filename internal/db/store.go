// Package db provides the run index: a small relational record of pipeline
// runs and their agent steps, backed by PostgreSQL or a local SQLite file.
package db

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jonathan/idea-forge/internal/types"
)

// Store is the run index used by the pipeline and the status API.
type Store interface {
	CreateRun(ctx context.Context, run types.Run) (uuid.UUID, error)
	RecordStep(ctx context.Context, runID uuid.UUID, input *StepInput) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status types.Status, iterations int, errMsg string) error
	// GetRun returns nil, nil when the run does not exist.
	GetRun(ctx context.Context, runID uuid.UUID) (*Run, error)
	// ListRuns returns runs newest first. An empty slug lists all runs.
	ListRuns(ctx context.Context, slug string, limit int) ([]Run, error)
	ListSteps(ctx context.Context, runID uuid.UUID) ([]Step, error)
	Close() error
}

// ErrNoBackend is returned by Open when neither a database URL nor a SQLite
// path is configured.
var ErrNoBackend = errors.New("no run index configured")

// Open connects to PostgreSQL when databaseURL is set and falls back to the
// SQLite file at sqlitePath otherwise.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	switch {
	case databaseURL != "":
		return Connect(ctx, databaseURL)
	case sqlitePath != "":
		return OpenSQLite(ctx, sqlitePath)
	default:
		return nil, ErrNoBackend
	}
}

const defaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
