package db

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus represents the status of a recorded agent step
type StepStatus string

const (
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// RunStatusRunning marks a run that has not reached a terminal status yet.
const RunStatusRunning = "running"

// Run represents an indexed pipeline run
type Run struct {
	ID          uuid.UUID  `json:"id"`
	RunID       string     `json:"run_id"`
	Slug        string     `json:"slug"`
	RunType     string     `json:"run_type"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	Iterations  int        `json:"iterations"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step represents one agent invocation within a run
type Step struct {
	ID           uuid.UUID  `json:"id"`
	RunID        uuid.UUID  `json:"run_id"`
	Iteration    int        `json:"iteration"`
	Agent        string     `json:"agent"`
	Status       StepStatus `json:"status"`
	DurationMs   int64      `json:"duration_ms"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// StepInput contains the fields for recording a step
type StepInput struct {
	Iteration    int
	Agent        string
	Status       StepStatus
	Duration     time.Duration
	ArtifactPath string
	ErrorMessage string
}
