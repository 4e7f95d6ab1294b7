package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/idea-forge/internal/agent"
	"github.com/jonathan/idea-forge/internal/schemas"
	"github.com/jonathan/idea-forge/internal/types"
)

// InputError reports a run that was rejected before anything was written.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// FeedbackNotFoundError is returned when a revision needs the previous
// iteration's reviewer or fact-checker output and neither the per-iteration
// file nor the latest mirror exists.
type FeedbackNotFoundError struct {
	Iteration int
	Kind      string
	Paths     []string
}

func (e *FeedbackNotFoundError) Error() string {
	return fmt.Sprintf("no %s found for iteration %d (looked in %v)", e.Kind, e.Iteration, e.Paths)
}

// AgentOutputError is returned when an agent reported success but its output
// file is missing, empty or unreadable.
type AgentOutputError struct {
	Agent   string
	Path    string
	Message string
	Cause   error
}

func (e *AgentOutputError) Error() string {
	return fmt.Sprintf("agent %s produced no usable output at %s: %s", e.Agent, e.Path, e.Message)
}

func (e *AgentOutputError) Unwrap() error {
	return e.Cause
}

// classify maps a run-ending error to its terminal status and the message
// surfaced in the result.
func classify(ctx context.Context, err error) (types.Status, string) {
	if errors.Is(err, agent.ErrInterrupted) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return types.StatusInterrupted, "run interrupted"
	}

	var agentErr *agent.Error
	if errors.As(err, &agentErr) {
		return types.StatusAgentFailure, agentErr.Message
	}

	var outputErr *AgentOutputError
	var repairErr *schemas.RepairError
	if errors.As(err, &outputErr) || errors.As(err, &repairErr) {
		return types.StatusAgentFailure, err.Error()
	}

	return types.StatusError, err.Error()
}
