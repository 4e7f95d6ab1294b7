package agent

import "encoding/json"

// Event is one message streamed by an agent while it works.
// The set of variants is closed: TextEvent, ThinkingEvent, ToolCallEvent,
// ToolResultEvent and CompletionEvent.
type Event interface {
	// Kind returns the event's type tag as written to messages.jsonl.
	Kind() string
	isEvent()
}

// TextEvent carries visible output text.
type TextEvent struct {
	Text string `json:"text"`
}

// ThinkingEvent carries reasoning text that is not part of the output.
type ThinkingEvent struct {
	Text string `json:"text"`
}

// ToolCallEvent records a tool invocation. ID correlates it with its result.
type ToolCallEvent struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// ToolResultEvent is the outcome of an earlier ToolCallEvent.
type ToolResultEvent struct {
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// CompletionEvent closes an agent invocation with usage totals.
type CompletionEvent struct {
	CostUSD      float64 `json:"cost_usd"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	DurationMS   int64   `json:"duration_ms"`
}

func (TextEvent) Kind() string       { return "text" }
func (ThinkingEvent) Kind() string   { return "thinking" }
func (ToolCallEvent) Kind() string   { return "tool_use" }
func (ToolResultEvent) Kind() string { return "tool_result" }
func (CompletionEvent) Kind() string { return "result" }

func (TextEvent) isEvent()       {}
func (ThinkingEvent) isEvent()   {}
func (ToolCallEvent) isEvent()   {}
func (ToolResultEvent) isEvent() {}
func (CompletionEvent) isEvent() {}

// ResultText returns the tool result content as a string. String payloads are
// unquoted; anything else is returned as raw JSON.
func (e ToolResultEvent) ResultText() string {
	if len(e.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Content, &s); err == nil {
		return s
	}
	return string(e.Content)
}
