package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/idea-forge/internal/agent"
	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/db"
	"github.com/jonathan/idea-forge/internal/schemas"
	"github.com/jonathan/idea-forge/internal/types"
)

// invoke runs one agent step, feeding its events to the recorder and the
// run index.
func (r *Runner) invoke(ctx context.Context, s *runState, a agent.Agent, step string, req agent.Request) error {
	name := a.Name()
	logger := s.logger.With("agent", name, "iteration", req.Iteration)
	logger.Debug("invoking agent", "output", req.OutputPath)
	s.emitProgress(step, CategoryAgent, req.Iteration, fmt.Sprintf("Running %s (iteration %d)", name, req.Iteration), nil)

	start := s.now()
	err := agent.Invoke(ctx, a, req, func(ev agent.Event) {
		if err := s.recorder.TrackEvent(ev, name, req.Iteration); err != nil {
			logger.Warn("failed to record event", "kind", ev.Kind(), "error", err)
		}
	})
	elapsed := s.now().Sub(start)

	input := &db.StepInput{
		Iteration: req.Iteration,
		Agent:     name,
		Status:    db.StepStatusCompleted,
		Duration:  elapsed,
	}
	if err != nil {
		input.Status = db.StepStatusFailed
		input.ErrorMessage = err.Error()
		logger.Warn("agent failed", "error", err, "duration", elapsed)
	} else {
		input.ArtifactPath = req.OutputPath
		logger.Debug("agent finished", "duration", elapsed)
	}
	r.indexStep(ctx, s, input)
	return err
}

// analyze runs the analyst for iteration n and mirrors its output to analysis.md.
func (r *Runner) analyze(ctx context.Context, s *runState, n int) (types.IterationRecord, error) {
	record := types.IterationRecord{Iteration: n, StartedAt: s.now().UTC()}

	req := agent.Request{
		Input:      s.input.Idea.Text(),
		OutputPath: s.dir.IterationAnalysis(n),
		Iteration:  n,
		Extra: map[string]string{
			agent.ExtraIdea: s.input.Idea.Text(),
			agent.ExtraSlug: s.run.Slug,
		},
	}
	if n > 1 {
		revision, err := r.revisionContext(s, n-1)
		if err != nil {
			return record, err
		}
		req.Revision = revision
	}

	if err := r.invoke(ctx, s, r.agents.Analyst, StepAnalyze, req); err != nil {
		return record, err
	}

	if !artifacts.NonTrivial(req.OutputPath, artifacts.MinAnalysisBytes) {
		return record, &AgentOutputError{
			Agent:   r.agents.Analyst.Name(),
			Path:    req.OutputPath,
			Message: "analysis file is missing or empty",
		}
	}
	s.last = req.OutputPath

	content, err := os.ReadFile(req.OutputPath)
	if err != nil {
		return record, &AgentOutputError{Agent: r.agents.Analyst.Name(), Path: req.OutputPath, Message: "unreadable", Cause: err}
	}
	if err := artifacts.WriteFileAtomic(s.dir.Analysis(), content, 0o644); err != nil {
		return record, err
	}
	s.last = s.dir.Analysis()
	s.final = s.dir.Analysis()

	record.AnalysisPath = req.OutputPath
	record.WordCount, record.CharCount = artifacts.TextStats(string(content))
	s.emitProgress(StepAnalyze, CategoryAgent, n,
		fmt.Sprintf("Analysis written (%d words)", record.WordCount), nil)
	return record, nil
}

// revisionContext locates the artifacts of iteration prev. The per-iteration
// file is preferred; the latest mirror is the fallback.
func (r *Runner) revisionContext(s *runState, prev int) (*agent.RevisionContext, error) {
	rc := &agent.RevisionContext{PreviousAnalysisPath: s.dir.IterationAnalysis(prev)}

	if s.input.Mode.ReviewEnabled() {
		path, err := locate(prev, "reviewer feedback", s.dir.IterationFeedback(prev), s.dir.FeedbackMirror())
		if err != nil {
			return nil, err
		}
		rc.FeedbackPath = path
	}
	if s.input.Mode.FactCheckEnabled() {
		path, err := locate(prev, "fact-check", s.dir.IterationFactCheck(prev), s.dir.FactCheckMirror())
		if err != nil {
			return nil, err
		}
		rc.FactCheckPath = path
	}
	return rc, nil
}

func locate(iteration int, kind string, candidates ...string) (string, error) {
	for _, p := range candidates {
		if artifacts.Exists(p) {
			return p, nil
		}
	}
	return "", &FeedbackNotFoundError{Iteration: iteration, Kind: kind, Paths: candidates}
}

// critiqueOutcome collects what the reviewer and fact-checker said about one iteration.
type critiqueOutcome struct {
	feedback      *types.Feedback
	feedbackPath  string
	factCheck     *types.FactCheck
	factCheckPath string
}

// rejected applies the veto-by-either rule: any active reviewer rejecting
// sends the analysis back for revision.
func (o *critiqueOutcome) rejected() bool {
	return (o.feedback != nil && o.feedback.Rejects()) || (o.factCheck != nil && o.factCheck.Rejects())
}

func (o *critiqueOutcome) feedbackVote() types.Recommendation {
	if o.feedback == nil {
		return ""
	}
	return o.feedback.Recommendation
}

func (o *critiqueOutcome) factCheckVote() types.Recommendation {
	if o.factCheck == nil {
		return ""
	}
	return o.factCheck.Recommendation
}

func (o *critiqueOutcome) apply(record *types.IterationRecord) {
	record.FeedbackPath = o.feedbackPath
	record.FactCheckPath = o.factCheckPath
	record.Recommendation = o.feedbackVote()
	record.FactCheckVote = o.factCheckVote()
}

func (o *critiqueOutcome) entry(n int) types.FeedbackEntry {
	return types.FeedbackEntry{Iteration: n, Feedback: o.feedback, FactCheck: o.factCheck}
}

// critique runs the reviewer and, when enabled, the fact-checker in parallel.
// The first failure cancels the other.
func (r *Runner) critique(ctx context.Context, s *runState, n int) (*critiqueOutcome, error) {
	analysisPath := s.dir.IterationAnalysis(n)
	content, err := os.ReadFile(analysisPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}

	parallel := []State{StateReviewing}
	if s.input.Mode.FactCheckEnabled() {
		parallel = append(parallel, StateFactChecking)
	}
	s.machine.fork(n, parallel...)

	outcome := &critiqueOutcome{}
	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := r.structured(gCtx, s, r.agents.Reviewer, StepReview, schemas.TypeReviewer, n, string(content),
			s.dir.IterationFeedback(n), s.dir.FeedbackMirror())
		if err != nil {
			return err
		}
		fb, err := types.DecodeFeedback(data)
		if err != nil {
			return &AgentOutputError{Agent: r.agents.Reviewer.Name(), Path: s.dir.IterationFeedback(n), Message: "undecodable feedback", Cause: err}
		}
		mu.Lock()
		outcome.feedback = fb
		outcome.feedbackPath = s.dir.IterationFeedback(n)
		mu.Unlock()
		return nil
	})

	if s.input.Mode.FactCheckEnabled() {
		g.Go(func() error {
			data, err := r.structured(gCtx, s, r.agents.FactChecker, StepFactCheck, schemas.TypeFactChecker, n, string(content),
				s.dir.IterationFactCheck(n), s.dir.FactCheckMirror())
			if err != nil {
				return err
			}
			fc, err := types.DecodeFactCheck(data)
			if err != nil {
				return &AgentOutputError{Agent: r.agents.FactChecker.Name(), Path: s.dir.IterationFactCheck(n), Message: "undecodable fact-check", Cause: err}
			}
			mu.Lock()
			outcome.factCheck = fc
			outcome.factCheckPath = s.dir.IterationFactCheck(n)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if outcome.factCheck != nil {
		s.emitProgress(StepFactCheck, CategoryAgent, n,
			fmt.Sprintf("Fact-check: %s (%d high-severity issues)", outcome.factCheck.Recommendation, outcome.factCheck.HighSeverityCount()),
			outcome.factCheck)
	}
	s.emitProgress(StepReview, CategoryAgent, n,
		fmt.Sprintf("Reviewer: %s", outcome.feedback.Recommendation), outcome.feedback)
	return outcome, nil
}

// structured runs a reviewer-style agent whose output must match a schema
// template. The output is validated, repaired at most once, rewritten in
// canonical form and mirrored to the latest pointer.
func (r *Runner) structured(ctx context.Context, s *runState, a agent.Agent, step, schemaType string, n int,
	analysis, outPath, mirrorPath string) (map[string]any, error) {
	schema, err := r.env.Registry.Get(schemaType)
	if err != nil {
		return nil, err
	}

	req := agent.Request{
		Input:      analysis,
		OutputPath: outPath,
		Iteration:  n,
		Extra: map[string]string{
			agent.ExtraIdea:         s.input.Idea.Text(),
			agent.ExtraSlug:         s.run.Slug,
			agent.ExtraTemplate:     schema.Template(),
			agent.ExtraAnalysisPath: s.dir.IterationAnalysis(n),
		},
	}
	if err := r.invoke(ctx, s, a, step, req); err != nil {
		return nil, err
	}

	if !artifacts.Exists(outPath) {
		return nil, &AgentOutputError{Agent: a.Name(), Path: outPath, Message: "output file was not written"}
	}
	data, err := schemas.LoadFile(outPath)
	if err != nil {
		return nil, &AgentOutputError{Agent: a.Name(), Path: outPath, Message: err.Error(), Cause: err}
	}

	fixed, repaired, err := schema.ValidateAndRepair(data)
	if err != nil {
		return nil, err
	}
	if repaired {
		s.logger.Info("repaired agent output", "agent", a.Name(), "iteration", n, "path", outPath)
	}

	// Rewrite in canonical form so fenced or repaired output is stored as plain JSON.
	if err := artifacts.WriteJSON(outPath, fixed); err != nil {
		return nil, err
	}
	if err := artifacts.CopyFileAtomic(outPath, mirrorPath); err != nil {
		return nil, err
	}
	s.setLast(outPath)
	return fixed, nil
}

func (s *runState) setLast(path string) {
	s.mu.Lock()
	s.last = path
	s.mu.Unlock()
}
