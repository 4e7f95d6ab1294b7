//go:build integration

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-forge/internal/types"
)

func setupTestDB(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Connect(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to DB: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	store := setupTestDB(t)
	ctx := context.Background()

	slug := "integration-" + time.Now().Format("150405.000000")
	id, err := store.CreateRun(ctx, types.Run{RunID: "20250101_120000", Slug: slug, RunType: types.RunTypeTest, Mode: types.ModeFactCheck})
	require.NoError(t, err)

	require.NoError(t, store.RecordStep(ctx, id, &StepInput{Iteration: 1, Agent: "analyst", Status: StepStatusCompleted, Duration: time.Second}))
	require.NoError(t, store.RecordStep(ctx, id, &StepInput{Iteration: 1, Agent: "fact_checker", Status: StepStatusFailed, ErrorMessage: "timeout"}))
	require.NoError(t, store.CompleteRun(ctx, id, types.StatusAgentFailure, 1, "timeout"))

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "agent_failure", run.Status)
	assert.Equal(t, "timeout", run.Error)
	assert.NotNil(t, run.CompletedAt)

	runs, err := store.ListRuns(ctx, slug, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	steps, err := store.ListSteps(ctx, id)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, int64(1000), steps[0].DurationMs)
	assert.Equal(t, "", steps[0].ErrorMessage)
	assert.Equal(t, "timeout", steps[1].ErrorMessage)
}
