package types

import "time"

// IterationRecord captures everything one iteration produced.
type IterationRecord struct {
	Iteration      int            `json:"iteration"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
	AnalysisPath   string         `json:"analysis_path"`
	WordCount      int            `json:"word_count"`
	CharCount      int            `json:"char_count"`
	FeedbackPath   string         `json:"feedback_path,omitempty"`
	FactCheckPath  string         `json:"fact_check_path,omitempty"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	FactCheckVote  Recommendation `json:"fact_check_recommendation,omitempty"`
	ReviewSkipped  bool           `json:"review_skipped,omitempty"`
}

// FeedbackEntry pairs an iteration with the reviewer and fact-checker outputs it received.
type FeedbackEntry struct {
	Iteration int        `json:"iteration"`
	Feedback  *Feedback  `json:"feedback,omitempty"`
	FactCheck *FactCheck `json:"fact_check,omitempty"`
}

// IterationHistory is the document persisted as iteration_history.json after every iteration.
type IterationHistory struct {
	Idea        string            `json:"idea"`
	Slug        string            `json:"slug"`
	RunID       string            `json:"run_id"`
	Iterations  []IterationRecord `json:"iterations"`
	Feedback    []FeedbackEntry   `json:"feedback"`
	FinalStatus Status            `json:"final_status,omitempty"`
}

// Transition is one state change of the iteration state machine.
type Transition struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Iteration int       `json:"iteration"`
	At        time.Time `json:"at"`
}

// RunMetadata is the consolidated document written as metadata.json when a run ends.
type RunMetadata struct {
	Run
	Idea             string       `json:"idea"`
	Status           Status       `json:"status"`
	Success          bool         `json:"success"`
	Iterations       int          `json:"iterations"`
	MaxIterations    int          `json:"max_iterations"`
	StartedAt        time.Time    `json:"started_at"`
	CompletedAt      time.Time    `json:"completed_at"`
	FinalAnalysis    string       `json:"final_analysis,omitempty"`
	LastArtifactPath string       `json:"last_artifact_path,omitempty"`
	ArchivedTo       string       `json:"archived_to,omitempty"`
	Error            string       `json:"error,omitempty"`
	Transitions      []Transition `json:"transitions,omitempty"`
}
