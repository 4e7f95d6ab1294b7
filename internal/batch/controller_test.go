package batch

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-forge/internal/ledger"
	"github.com/jonathan/idea-forge/internal/observability"
	"github.com/jonathan/idea-forge/internal/pipeline"
	"github.com/jonathan/idea-forge/internal/types"
)

// probeRunner counts how many runs are in flight at once.
type probeRunner struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	hold     time.Duration
	outcome  func(in pipeline.Input) *pipeline.Result
}

func (p *probeRunner) Run(ctx context.Context, in pipeline.Input) *pipeline.Result {
	p.calls.Add(1)
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	select {
	case <-time.After(p.hold):
	case <-ctx.Done():
		return &pipeline.Result{Slug: in.Idea.Slug(), Status: types.StatusInterrupted, Interrupted: true}
	}

	if p.outcome != nil {
		return p.outcome(in)
	}
	return &pipeline.Result{Slug: in.Idea.Slug(), Status: types.StatusAccepted, Success: true, Iterations: 1}
}

func ideas(titles ...string) []types.Idea {
	out := make([]types.Idea, 0, len(titles))
	for _, t := range titles {
		out = append(out, types.Idea{Title: t, Description: "about " + t})
	}
	return out
}

func TestProcessBatch_BoundsConcurrency(t *testing.T) {
	runner := &probeRunner{hold: 30 * time.Millisecond}
	c := NewController(runner, Options{Mode: types.ModeReview, RunType: types.RunTypeTest, MaxIterations: 2, MaxConcurrent: 2}, nil, nil)

	results := c.ProcessBatch(context.Background(), ideas("One", "Two", "Three", "Four", "Five"), nil)

	assert.Len(t, results, 5)
	assert.Equal(t, int32(5), runner.calls.Load())
	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(2), "never more than max_concurrent holders")
	assert.GreaterOrEqual(t, runner.maxSeen.Load(), int32(1))
	for _, res := range results {
		assert.True(t, res.Success)
	}
}

func TestProcessBatch_PassesOptions(t *testing.T) {
	var got pipeline.Input
	runner := &probeRunner{outcome: func(in pipeline.Input) *pipeline.Result {
		got = in
		return &pipeline.Result{Slug: in.Idea.Slug(), Status: types.StatusCompleted, Success: true}
	}}
	c := NewController(runner, Options{Mode: types.ModeFactCheck, RunType: types.RunTypeProduction, MaxIterations: 4}, nil, nil)

	c.ProcessBatch(context.Background(), ideas("Solar Kiosk"), nil)

	assert.Equal(t, types.ModeFactCheck, got.Mode)
	assert.Equal(t, types.RunTypeProduction, got.RunType)
	assert.Equal(t, 4, got.MaxIterations)
	assert.Equal(t, "Solar Kiosk", got.Idea.Title)
}

func TestProcessBatch_PanicBecomesFailure(t *testing.T) {
	runner := &probeRunner{outcome: func(in pipeline.Input) *pipeline.Result {
		if in.Idea.Title == "Bad" {
			panic("boom")
		}
		return &pipeline.Result{Slug: in.Idea.Slug(), Status: types.StatusAccepted, Success: true}
	}}
	c := NewController(runner, Options{MaxConcurrent: 2}, nil, nil)

	results := c.ProcessBatch(context.Background(), ideas("Good", "Bad"), nil)

	require.Contains(t, results, "bad")
	assert.False(t, results["bad"].Success)
	assert.Equal(t, types.StatusError, results["bad"].Status)
	assert.Equal(t, "panic: boom", results["bad"].Error)
	assert.True(t, results["good"].Success)
}

func TestProcessBatch_NilResult(t *testing.T) {
	runner := &probeRunner{outcome: func(pipeline.Input) *pipeline.Result { return nil }}
	c := NewController(runner, Options{}, nil, nil)

	results := c.ProcessBatch(context.Background(), ideas("Solar Kiosk"), nil)

	require.Contains(t, results, "solar-kiosk")
	assert.Equal(t, types.StatusError, results["solar-kiosk"].Status)
	assert.False(t, results["solar-kiosk"].Success)
}

func TestProcessBatch_MovesLedgerEntries(t *testing.T) {
	files := ledger.NewFiles(t.TempDir())
	batch := ideas("Solar Kiosk", "Tool Library", "Night Market")
	for _, idea := range batch {
		require.NoError(t, files.AddPending(idea))
	}

	runner := &probeRunner{outcome: func(in pipeline.Input) *pipeline.Result {
		if in.Idea.Title == "Tool Library" {
			return &pipeline.Result{Slug: in.Idea.Slug(), Status: types.StatusAgentFailure, Error: "quota exceeded"}
		}
		return &pipeline.Result{Slug: in.Idea.Slug(), Status: types.StatusAccepted, Success: true}
	}}
	var out bytes.Buffer
	c := NewController(runner, Options{MaxConcurrent: 3}, observability.NewPrinter(&out), nil)

	c.ProcessBatch(context.Background(), batch, files)

	pending, err := files.ReadPending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	completed, err := files.ReadCompleted()
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	failed, err := files.ReadFailed()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "Tool Library", failed[0].Title)
	assert.Contains(t, failed[0].Description, "quota exceeded")

	assert.Contains(t, out.String(), "2 succeeded, 1 failed")
}

func TestProcessBatch_CancelledKeepsPending(t *testing.T) {
	files := ledger.NewFiles(t.TempDir())
	batch := ideas("Solar Kiosk", "Tool Library")
	for _, idea := range batch {
		require.NoError(t, files.AddPending(idea))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &probeRunner{hold: time.Second}
	c := NewController(runner, Options{MaxConcurrent: 1}, nil, nil)
	results := c.ProcessBatch(ctx, batch, files)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Interrupted)
		assert.False(t, res.Success)
	}
	pending, err := files.ReadPending()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestProcessBatch_SkipsDuplicateSlugs(t *testing.T) {
	runner := &probeRunner{}
	c := NewController(runner, Options{}, nil, nil)

	results := c.ProcessBatch(context.Background(), ideas("Solar Kiosk", "solar kiosk!"), nil)

	assert.Len(t, results, 1)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestRows(t *testing.T) {
	batch := ideas("Solar Kiosk", "Missing")
	rows := Rows(batch, map[string]*pipeline.Result{
		"solar-kiosk": {Slug: "solar-kiosk", Status: types.StatusAccepted, Success: true, Iterations: 2},
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "Solar Kiosk", rows[0].Title)
	assert.Equal(t, 2, rows[0].Iterations)
}
