// Package agent defines the contract between the pipeline and the collaborators
// that draft, review and fact-check an analysis, plus adapters implementing it.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies which part an agent plays in a run.
type Role string

const (
	RoleAnalyst     Role = "analyst"
	RoleReviewer    Role = "reviewer"
	RoleFactChecker Role = "fact_checker"
)

// Keys used in Request.Extra.
const (
	ExtraIdea         = "idea"
	ExtraTemplate     = "template"
	ExtraAnalysisPath = "analysis_path"
	ExtraSlug         = "slug"
)

// Agent is a collaborator the pipeline invokes once per step.
// Process must write its output to req.OutputPath and stream progress to events.
// It must not close events, and should stop promptly once ctx is done.
type Agent interface {
	Name() string
	Process(ctx context.Context, req Request, events chan<- Event) error
}

// RevisionContext points an analyst at the previous iteration's artifacts.
type RevisionContext struct {
	PreviousAnalysisPath string `json:"previous_analysis_path"`
	FeedbackPath         string `json:"feedback_path,omitempty"`
	FactCheckPath        string `json:"fact_check_path,omitempty"`
}

// Request is the input to one agent invocation.
type Request struct {
	// Input is the idea text for the analyst, or the analysis to examine for reviewers.
	Input      string            `json:"input"`
	OutputPath string            `json:"output_path"`
	Iteration  int               `json:"iteration"`
	Revision   *RevisionContext  `json:"revision,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Emit sends ev unless ctx is done first.
func Emit(ctx context.Context, events chan<- Event, ev Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invoke runs a.Process and hands every event to observe in order.
// Cancellation is checked at every receive; once ctx is done Invoke stops
// observing and returns ErrInterrupted without waiting for the agent.
// Non-structured failures and panics are converted to *Error.
func Invoke(ctx context.Context, a Agent, req Request, observe func(Event)) error {
	runCtx, cancel := context.WithCancel(ctx)

	events := make(chan Event, 64)
	done := make(chan error, 1)

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = &Error{Agent: a.Name(), Message: fmt.Sprintf("panic: %v", r)}
			}
			close(events)
			done <- err
		}()
		err = a.Process(runCtx, req, events)
	}()

	for {
		select {
		case <-ctx.Done():
			cancel()
			go drain(events)
			return fmt.Errorf("%s: %w", a.Name(), ErrInterrupted)
		case ev, ok := <-events:
			if !ok {
				err := <-done
				cancel()
				return normalize(ctx, a.Name(), err)
			}
			if observe != nil {
				observe(ev)
			}
		}
	}
}

func drain(events <-chan Event) {
	for range events {
	}
}

func normalize(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", name, ErrInterrupted)
	}
	if err == nil {
		return nil
	}
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return err
	}
	return &Error{Agent: name, Message: err.Error(), Cause: err}
}
