// Package pipeline runs the iterative analyze, review and fact-check loop for
// a single idea and persists every artifact it produces.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/idea-forge/internal/agent"
	"github.com/jonathan/idea-forge/internal/analytics"
	"github.com/jonathan/idea-forge/internal/archive"
	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/db"
	"github.com/jonathan/idea-forge/internal/schemas"
	"github.com/jonathan/idea-forge/internal/types"
)

// DefaultMaxIterationsLimit caps Input.MaxIterations when Env leaves it unset.
const DefaultMaxIterationsLimit = 10

// Env carries the shared collaborators of every run.
type Env struct {
	Store    *artifacts.Store
	Registry *schemas.Registry
	Archiver *archive.Manager
	// Index is optional. Index failures are logged and never fail a run.
	Index              db.Store
	Logger             *slog.Logger
	MaxIterationsLimit int
	Now                func() time.Time
}

// Agents holds the collaborators for each role. Reviewer and FactChecker may
// be nil when the mode does not use them.
type Agents struct {
	Analyst     agent.Agent
	Reviewer    agent.Agent
	FactChecker agent.Agent
}

// Input describes one run.
type Input struct {
	Idea          types.Idea
	Mode          types.Mode
	RunType       types.RunType
	MaxIterations int
	// OnProgress may be called from more than one goroutine.
	OnProgress ProgressCallback
}

// Result is the outcome of a run. A Result is always returned, even when the
// run fails before touching the filesystem.
type Result struct {
	Slug              string                  `json:"slug"`
	RunID             string                  `json:"run_id"`
	Success           bool                    `json:"success"`
	Status            types.Status            `json:"status"`
	Interrupted       bool                    `json:"interrupted"`
	Iterations        int                     `json:"iterations"`
	FinalAnalysisPath string                  `json:"final_analysis_path,omitempty"`
	LastArtifactPath  string                  `json:"last_artifact_path,omitempty"`
	Error             string                  `json:"error,omitempty"`
	WorkingDir        string                  `json:"working_dir"`
	ArchivedTo        string                  `json:"archived_to,omitempty"`
	Duration          time.Duration           `json:"duration"`
	History           *types.IterationHistory `json:"-"`
	Summary           *analytics.RunSummary   `json:"-"`
}

// Runner executes runs against a fixed set of agents.
type Runner struct {
	env    Env
	agents Agents
}

// NewRunner creates a Runner. Zero-valued Env fields get defaults.
func NewRunner(env Env, agents Agents) *Runner {
	if env.Logger == nil {
		env.Logger = slog.New(slog.DiscardHandler)
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.MaxIterationsLimit <= 0 {
		env.MaxIterationsLimit = DefaultMaxIterationsLimit
	}
	if env.Registry == nil {
		env.Registry = schemas.NewRegistry("")
	}
	if env.Archiver == nil {
		env.Archiver = archive.NewManager(nil, env.Logger)
	}
	return &Runner{env: env, agents: agents}
}

// runState is the mutable bookkeeping of one run.
type runState struct {
	input    Input
	run      types.Run
	dir      artifacts.Dir
	logger   *slog.Logger
	machine  *machine
	recorder *analytics.Recorder
	history  *types.IterationHistory
	started  time.Time
	now      func() time.Time
	indexID  uuid.UUID

	mu    sync.Mutex
	last  string
	final string
}

// Run executes the state machine for in and returns its result. Errors are
// reported through Result.Status and Result.Error.
func (r *Runner) Run(ctx context.Context, in Input) *Result {
	started := r.env.Now()
	slug := in.Idea.Slug()
	run := types.Run{
		RunID:   types.NewRunID(started),
		Slug:    slug,
		RunType: in.RunType,
		Mode:    in.Mode,
	}

	result := &Result{Slug: slug, RunID: run.RunID}
	if r.env.Store != nil && slug != "" {
		result.WorkingDir = r.env.Store.WorkingDir(slug).String()
	}
	fail := func(err error) *Result {
		result.Status, result.Error = classify(ctx, err)
		result.Interrupted = result.Status == types.StatusInterrupted
		result.Duration = r.env.Now().Sub(started)
		return result
	}

	if err := r.validate(in, slug); err != nil {
		return fail(err)
	}

	s := &runState{
		input:   in,
		run:     run,
		dir:     r.env.Store.WorkingDir(slug),
		logger:  r.env.Logger.With("slug", slug, "run_id", run.RunID),
		machine: newMachine(r.env.Now),
		started: started,
		now:     r.env.Now,
		history: &types.IterationHistory{
			Idea:       in.Idea.Text(),
			Slug:       slug,
			RunID:      run.RunID,
			Iterations: []types.IterationRecord{},
			Feedback:   []types.FeedbackEntry{},
		},
	}

	if ctx.Err() != nil {
		return fail(ctx.Err())
	}

	// Archive before anything in the working directory is written.
	archived, err := r.env.Archiver.ArchiveCurrent(s.dir.String(), in.RunType)
	if err != nil {
		return fail(err)
	}
	result.ArchivedTo = archived
	if archived != "" {
		s.logger.Info("archived previous run", "path", archived)
		s.emitProgress(StepArchive, CategoryLifecycle, 0, "Archived previous run to "+archived, nil)
	}

	if err := s.dir.Ensure(); err != nil {
		return fail(err)
	}
	if s.recorder, err = analytics.NewRecorder(s.dir.String(), run.RunID); err != nil {
		return fail(err)
	}

	s.indexID = r.indexCreate(ctx, s)

	status, runErr := r.loop(ctx, s)
	result.Status = status
	if runErr != nil {
		result.Status, result.Error = classify(ctx, runErr)
		s.logger.Warn("run ended early", "status", result.Status, "error", runErr)
	}
	s.machine.enter(StateTerminal, len(s.history.Iterations))

	r.finish(s, result)
	return result
}

func (r *Runner) validate(in Input, slug string) error {
	switch {
	case slug == "":
		return &InputError{Field: "idea", Message: "title produces an empty slug"}
	case !in.Mode.Valid():
		return &InputError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", in.Mode)}
	case !in.RunType.Valid():
		return &InputError{Field: "run_type", Message: fmt.Sprintf("unknown run type %q", in.RunType)}
	case in.MaxIterations < 1 || in.MaxIterations > r.env.MaxIterationsLimit:
		return &InputError{
			Field:   "max_iterations",
			Message: fmt.Sprintf("%d is outside 1..%d", in.MaxIterations, r.env.MaxIterationsLimit),
		}
	case r.env.Store == nil:
		return &InputError{Field: "store", Message: "artifact store is not configured"}
	case r.agents.Analyst == nil:
		return &InputError{Field: "agents", Message: "analyst is not configured"}
	case in.Mode.ReviewEnabled() && in.MaxIterations > 1 && r.agents.Reviewer == nil:
		return &InputError{Field: "agents", Message: "reviewer is not configured"}
	case in.Mode.FactCheckEnabled() && in.MaxIterations > 1 && r.agents.FactChecker == nil:
		return &InputError{Field: "agents", Message: "fact-checker is not configured"}
	}
	return nil
}

// loop runs iterations until a stop condition holds. A non-nil error ends
// the run early and decides its status.
func (r *Runner) loop(ctx context.Context, s *runState) (types.Status, error) {
	maxIter := s.input.MaxIterations

	for n := 1; n <= maxIter; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		s.machine.enter(StateAnalyzing, n)
		record, err := r.analyze(ctx, s, n)
		if err != nil {
			return "", err
		}

		if !s.input.Mode.ReviewEnabled() {
			s.appendIteration(record)
			if err := r.writeHistory(s); err != nil {
				return "", err
			}
			s.machine.enter(StateDone, n)
			s.emitProgress(StepDecide, CategoryDecision, n, "Analysis complete", nil)
			return types.StatusCompleted, nil
		}

		if n == maxIter {
			// Reviewers never see the final allowed iteration.
			record.ReviewSkipped = true
			s.appendIteration(record)
			if err := r.writeHistory(s); err != nil {
				return "", err
			}
			if maxIter == 1 {
				s.machine.enter(StateDone, n)
				s.emitProgress(StepDecide, CategoryDecision, n, "Single iteration complete", nil)
				return types.StatusCompleted, nil
			}
			s.machine.enter(StateMaxIterationsReached, n)
			s.emitProgress(StepDecide, CategoryDecision, n,
				fmt.Sprintf("Reached max iterations (%d)", maxIter), nil)
			return types.StatusMaxIterationsReached, nil
		}

		outcome, err := r.critique(ctx, s, n)
		if err != nil {
			// Keep what the analyst produced in the history.
			s.appendIteration(record)
			if herr := r.writeHistory(s); herr != nil {
				s.logger.Error("failed to write history after critique failure", "iteration", n, "error", herr)
			}
			return "", err
		}
		outcome.apply(&record)
		s.appendIteration(record)
		s.history.Feedback = append(s.history.Feedback, outcome.entry(n))
		if err := r.writeHistory(s); err != nil {
			return "", err
		}

		s.machine.enter(StateDeciding, n)
		if !outcome.rejected() {
			s.machine.enter(StateDone, n)
			s.emitProgress(StepDecide, CategoryDecision, n, "Analysis accepted", nil)
			return types.StatusAccepted, nil
		}
		s.logger.Info("revision requested", "iteration", n,
			"reviewer", outcome.feedbackVote(), "fact_checker", outcome.factCheckVote())
		s.emitProgress(StepDecide, CategoryDecision, n, "Revision requested", nil)
	}

	// Unreachable: the last iteration always returns above.
	return types.StatusMaxIterationsReached, nil
}

func (s *runState) appendIteration(record types.IterationRecord) {
	record.CompletedAt = s.now().UTC()
	s.history.Iterations = append(s.history.Iterations, record)
}

func (r *Runner) writeHistory(s *runState) error {
	if err := artifacts.WriteJSON(s.dir.History(), s.history); err != nil {
		return fmt.Errorf("failed to write iteration history: %w", err)
	}
	return nil
}

// finish writes the closing artifacts and fills in result. Failures here are
// logged; they do not change the run status.
func (r *Runner) finish(s *runState, result *Result) {
	completed := r.env.Now()

	result.Success = result.Status.Successful()
	result.Interrupted = result.Status == types.StatusInterrupted
	result.Iterations = len(s.history.Iterations)
	result.FinalAnalysisPath = s.final
	result.LastArtifactPath = s.last
	result.History = s.history
	result.Duration = completed.Sub(s.started)

	s.history.FinalStatus = result.Status
	if err := r.writeHistory(s); err != nil {
		s.logger.Error("failed to write final history", "error", err)
	}

	meta := types.RunMetadata{
		Run:              s.run,
		Idea:             s.input.Idea.Text(),
		Status:           result.Status,
		Success:          result.Success,
		Iterations:       result.Iterations,
		MaxIterations:    s.input.MaxIterations,
		StartedAt:        s.started.UTC(),
		CompletedAt:      completed.UTC(),
		FinalAnalysis:    result.FinalAnalysisPath,
		LastArtifactPath: result.LastArtifactPath,
		ArchivedTo:       result.ArchivedTo,
		Error:            result.Error,
		Transitions:      s.machine.log(),
	}
	if err := artifacts.WriteJSON(s.dir.Metadata(), meta); err != nil {
		s.logger.Error("failed to write metadata", "error", err)
	}

	summary, err := s.recorder.Finalize()
	if err != nil {
		s.logger.Error("failed to write run summary", "error", err)
	}
	result.Summary = summary

	r.indexComplete(s, result)

	s.logger.Info("run finished",
		"status", result.Status,
		"iterations", result.Iterations,
		"duration", result.Duration.Round(time.Millisecond))
	s.emitProgress(StepComplete, CategoryLifecycle, result.Iterations,
		fmt.Sprintf("Run finished: %s", result.Status), result)
}

// indexCreate registers the run in the index, if one is configured.
func (r *Runner) indexCreate(ctx context.Context, s *runState) uuid.UUID {
	if r.env.Index == nil {
		return uuid.Nil
	}
	id, err := r.env.Index.CreateRun(ctx, s.run)
	if err != nil {
		s.logger.Warn("failed to index run", "error", err)
		return uuid.Nil
	}
	return id
}

func (r *Runner) indexStep(ctx context.Context, s *runState, input *db.StepInput) {
	if r.env.Index == nil || s.indexID == uuid.Nil {
		return
	}
	if err := r.env.Index.RecordStep(context.WithoutCancel(ctx), s.indexID, input); err != nil {
		s.logger.Warn("failed to index step", "agent", input.Agent, "iteration", input.Iteration, "error", err)
	}
}

func (r *Runner) indexComplete(s *runState, result *Result) {
	if r.env.Index == nil || s.indexID == uuid.Nil {
		return
	}
	// The run context may already be cancelled; the terminal status still belongs in the index.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.env.Index.CompleteRun(ctx, s.indexID, result.Status, result.Iterations, result.Error); err != nil {
		s.logger.Warn("failed to complete indexed run", "error", err)
	}
}
