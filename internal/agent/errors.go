package agent

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned by Invoke when the context was cancelled while the agent ran.
var ErrInterrupted = errors.New("agent interrupted")

// Error is a structured agent failure. Message is surfaced to the user verbatim.
type Error struct {
	Agent   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent %s failed: %s", e.Agent, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
