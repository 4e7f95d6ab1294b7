package pipeline

// Progress steps.
const (
	StepArchive   = "archive"
	StepAnalyze   = "analyze"
	StepReview    = "review"
	StepFactCheck = "fact_check"
	StepDecide    = "decide"
	StepComplete  = "complete"
)

// Progress categories.
const (
	CategoryLifecycle = "lifecycle"
	CategoryAgent     = "agent"
	CategoryDecision  = "decision"
)

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Step      string `json:"step"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Slug      string `json:"slug"`
	RunID     string `json:"run_id,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
	Content   any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// emitProgress calls the progress callback if configured
func (s *runState) emitProgress(step, category string, iteration int, message string, content any) {
	if s.input.OnProgress == nil {
		return
	}
	s.input.OnProgress(ProgressEvent{
		Step:      step,
		Category:  category,
		Message:   message,
		Slug:      s.run.Slug,
		RunID:     s.run.RunID,
		Iteration: iteration,
		Content:   content,
	})
}
