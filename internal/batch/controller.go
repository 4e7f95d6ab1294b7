// Package batch runs many ideas through the pipeline with bounded concurrency
// and keeps the markdown ledgers in step with the outcomes.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jonathan/idea-forge/internal/ledger"
	"github.com/jonathan/idea-forge/internal/observability"
	"github.com/jonathan/idea-forge/internal/pipeline"
	"github.com/jonathan/idea-forge/internal/types"
)

// DefaultMaxConcurrent is used when Options leaves MaxConcurrent unset.
const DefaultMaxConcurrent = 3

// Runner executes one idea. *pipeline.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) *pipeline.Result
}

// Options configures every run of a batch.
type Options struct {
	Mode          types.Mode
	RunType       types.RunType
	MaxIterations int
	MaxConcurrent int
	// OnProgress receives progress from every run; it is called concurrently.
	OnProgress pipeline.ProgressCallback
}

// Controller fans ideas out to a Runner, at most MaxConcurrent at a time.
type Controller struct {
	runner  Runner
	opts    Options
	printer *observability.Printer
	logger  *slog.Logger
	now     func() time.Time
}

// NewController creates a Controller. printer may be nil to suppress terminal output.
func NewController(runner Runner, opts Options, printer *observability.Printer, logger *slog.Logger) *Controller {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{runner: runner, opts: opts, printer: printer, logger: logger, now: time.Now}
}

// ProcessBatch runs every idea and returns the results keyed by slug. Every
// idea gets a goroutine immediately and holds one semaphore permit for its
// whole run. When files is non-nil, finished ideas move from pending.md to
// completed.md or failed.md; interrupted ideas stay pending.
func (c *Controller) ProcessBatch(ctx context.Context, ideas []types.Idea, files *ledger.Files) map[string]*pipeline.Result {
	started := c.now()
	sem := semaphore.NewWeighted(int64(c.opts.MaxConcurrent))

	results := make(map[string]*pipeline.Result, len(ideas))
	order := make([]types.Idea, 0, len(ideas))
	var mu sync.Mutex
	var wg sync.WaitGroup

	seen := make(map[string]bool, len(ideas))
	for _, idea := range ideas {
		slug := idea.Slug()
		if seen[slug] {
			c.logger.Warn("skipping duplicate idea in batch", "slug", slug, "title", idea.Title)
			continue
		}
		seen[slug] = true
		order = append(order, idea)

		wg.Add(1)
		go func(idea types.Idea) {
			defer wg.Done()
			res := c.runOne(ctx, sem, idea)

			mu.Lock()
			results[res.Slug] = res
			mu.Unlock()

			c.record(files, idea, res)
		}(idea)
	}
	wg.Wait()

	c.logger.Info("batch finished", "ideas", len(order), "duration", c.now().Sub(started).Round(time.Millisecond))
	if c.printer != nil {
		c.printer.PrintBatchSummary(Rows(order, results), c.now().Sub(started))
	}
	return results
}

// runOne waits for a permit and runs idea. Panics and missing results become
// failed results so a single idea cannot take the batch down.
func (c *Controller) runOne(ctx context.Context, sem *semaphore.Weighted, idea types.Idea) (res *pipeline.Result) {
	slug := idea.Slug()
	logger := c.logger.With("slug", slug)

	if err := sem.Acquire(ctx, 1); err != nil {
		logger.Info("idea not started", "error", err)
		return &pipeline.Result{
			Slug:        slug,
			Status:      types.StatusInterrupted,
			Interrupted: true,
			Error:       "batch cancelled before the idea started",
		}
	}
	defer sem.Release(1)

	start := c.now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", "panic", r)
			res = &pipeline.Result{
				Slug:     slug,
				Status:   types.StatusError,
				Error:    fmt.Sprintf("panic: %v", r),
				Duration: c.now().Sub(start),
			}
		}
	}()

	c.progress(idea, "Started")
	res = c.runner.Run(ctx, pipeline.Input{
		Idea:          idea,
		Mode:          c.opts.Mode,
		RunType:       c.opts.RunType,
		MaxIterations: c.opts.MaxIterations,
		OnProgress:    c.opts.OnProgress,
	})
	if res == nil {
		res = &pipeline.Result{Slug: slug, Status: types.StatusError, Error: "runner returned no result"}
	}
	if res.Slug == "" {
		res.Slug = slug
	}
	c.progress(idea, fmt.Sprintf("Finished: %s", res.Status))
	return res
}

func (c *Controller) progress(idea types.Idea, message string) {
	if c.printer != nil {
		c.printer.PrintProgress(0, fmt.Sprintf("%s: %s", idea.Title, message))
	}
}

// record updates the ledgers for one finished idea. Ledger failures are
// logged; they never change the run result.
func (c *Controller) record(files *ledger.Files, idea types.Idea, res *pipeline.Result) {
	if files == nil || res.Interrupted {
		return
	}
	var err error
	if res.Success {
		err = files.MoveToCompleted(idea)
	} else {
		err = files.MoveToFailed(idea, res.Error)
	}
	if err != nil {
		c.logger.Error("failed to update ledger", "slug", res.Slug, "error", err)
	}
}

// Rows converts results to summary rows in the order of ideas.
func Rows(ideas []types.Idea, results map[string]*pipeline.Result) []observability.BatchRow {
	rows := make([]observability.BatchRow, 0, len(ideas))
	for _, idea := range ideas {
		res, ok := results[idea.Slug()]
		if !ok {
			continue
		}
		rows = append(rows, observability.BatchRow{
			Title:      idea.Title,
			Status:     res.Status,
			Success:    res.Success,
			Iterations: res.Iterations,
			Duration:   res.Duration,
			Error:      res.Error,
		})
	}
	return rows
}
