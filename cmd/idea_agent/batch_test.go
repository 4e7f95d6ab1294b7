package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-forge/internal/config"
	"github.com/jonathan/idea-forge/internal/ledger"
	"github.com/jonathan/idea-forge/internal/types"
)

func TestBatchCommand_ListOnly(t *testing.T) {
	outputDir := setupWorkspace(t, nil)
	batchAdd = []string{"Solar Kiosk", "Tool Library"}
	batchList = true

	cmd, out := newTestCommand()
	require.NoError(t, runBatchCmd(cmd, nil))

	assert.Equal(t, "solar-kiosk\tSolar Kiosk\ntool-library\tTool Library\n", out.String())

	pending, err := ledger.NewFiles(outputDir).ReadPending()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestBatchCommand_EmptyLedger(t *testing.T) {
	setupWorkspace(t, nil)

	cmd, out := newTestCommand()
	require.NoError(t, runBatchCmd(cmd, nil))
	assert.Contains(t, out.String(), "No pending ideas")
}

func TestBatchCommand_ProcessesPending(t *testing.T) {
	outputDir := setupWorkspace(t, func(cfg *config.Config) {
		cfg.Mode = "analyze"
		cfg.MaxConcurrent = 2
	})
	files := ledger.NewFiles(outputDir)
	require.NoError(t, files.AddPending(types.Idea{Title: "Solar Kiosk", Description: "Battery rental"}))
	require.NoError(t, files.AddPending(types.Idea{Title: "Tool Library"}))

	cmd, _ := newTestCommand()
	require.NoError(t, runBatchCmd(cmd, nil))

	pending, err := files.ReadPending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	completed, err := files.ReadCompleted()
	require.NoError(t, err)
	titles := make([]string, 0, len(completed))
	for _, idea := range completed {
		titles = append(titles, idea.Title)
	}
	assert.ElementsMatch(t, []string{"Solar Kiosk", "Tool Library"}, titles)
}

func TestBatchCommand_FailuresReported(t *testing.T) {
	outputDir := setupWorkspace(t, func(cfg *config.Config) {
		cfg.Mode = "analyze"
		cfg.Agents.Analyst = failingAgent("quota exceeded")
	})
	batchAdd = []string{"Solar Kiosk"}

	cmd, _ := newTestCommand()
	err := runBatchCmd(cmd, nil)
	require.Error(t, err)
	assert.Equal(t, "1 of 1 ideas failed", err.Error())

	failed, err := ledger.NewFiles(outputDir).ReadFailed()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "Solar Kiosk", failed[0].Title)
}
