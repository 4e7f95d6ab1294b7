package types

import (
	"fmt"
	"time"
)

// RunIDLayout is the time layout used for run identifiers and archive directory suffixes.
const RunIDLayout = "20060102_150405"

// RunType separates test runs from production runs for archive retention.
type RunType string

const (
	RunTypeTest       RunType = "test"
	RunTypeProduction RunType = "production"
)

// Valid reports whether t is a known run type.
func (t RunType) Valid() bool {
	return t == RunTypeTest || t == RunTypeProduction
}

// Mode selects which agents participate in a run.
type Mode string

const (
	// ModeAnalyze runs the analyst only.
	ModeAnalyze Mode = "analyze"
	// ModeReview runs the analyst and the reviewer.
	ModeReview Mode = "review"
	// ModeFactCheck runs the analyst, the reviewer and the fact-checker.
	ModeFactCheck Mode = "factcheck"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAnalyze, ModeReview, ModeFactCheck:
		return true
	}
	return false
}

// ReviewEnabled reports whether the reviewer participates.
func (m Mode) ReviewEnabled() bool {
	return m == ModeReview || m == ModeFactCheck
}

// FactCheckEnabled reports whether the fact-checker participates.
func (m Mode) FactCheckEnabled() bool {
	return m == ModeFactCheck
}

// ParseMode accepts the canonical mode names plus their long-form aliases.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "analyze", "analyze-only":
		return ModeAnalyze, nil
	case "review", "analyze-and-review":
		return ModeReview, nil
	case "factcheck", "fact-check", "analyze-review-and-factcheck":
		return ModeFactCheck, nil
	}
	return "", fmt.Errorf("unknown mode %q (expected analyze, review or factcheck)", s)
}

// Status is the terminal status of a run.
type Status string

const (
	StatusAccepted             Status = "accepted"
	StatusMaxIterationsReached Status = "max_iterations_reached"
	StatusAgentFailure         Status = "agent_failure"
	StatusInterrupted          Status = "interrupted"
	StatusCompleted            Status = "completed"
	StatusError                Status = "error"
)

// Successful reports whether the status counts as a successful run.
func (s Status) Successful() bool {
	switch s {
	case StatusAccepted, StatusCompleted, StatusMaxIterationsReached:
		return true
	}
	return false
}

// Run identifies one execution of the pipeline for one idea.
type Run struct {
	RunID   string  `json:"run_id"`
	Slug    string  `json:"slug"`
	RunType RunType `json:"run_type"`
	Mode    Mode    `json:"mode"`
}

// NewRunID returns the timestamp-based identifier for a run started at t.
func NewRunID(t time.Time) string {
	return t.Format(RunIDLayout)
}
