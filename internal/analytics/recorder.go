// Package analytics records every agent event of a run to messages.jsonl and
// aggregates per-agent metrics into run_summary.json.
package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonathan/idea-forge/internal/agent"
	"github.com/jonathan/idea-forge/internal/artifacts"
)

// Key identifies the metrics bucket of one agent in one iteration.
type Key struct {
	Agent     string
	Iteration int
}

// SearchResult is one hit returned by a search tool.
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchQuery is a search tool call and the results attributed back to it.
type SearchQuery struct {
	Query     string         `json:"query"`
	ToolUseID string         `json:"tool_use_id"`
	Results   []SearchResult `json:"results"`
}

// AgentMetrics aggregates the events of one agent in one iteration.
type AgentMetrics struct {
	Agent         string        `json:"agent"`
	Iteration     int           `json:"iteration"`
	Messages      int           `json:"messages"`
	TextChars     int           `json:"text_chars"`
	ThinkingChars int           `json:"thinking_chars"`
	ToolCalls     int           `json:"tool_calls"`
	ToolErrors    int           `json:"tool_errors"`
	Searches      []SearchQuery `json:"searches"`
	FilesRead     []string      `json:"files_read"`
	FilesWritten  []string      `json:"files_written"`
	CostUSD       float64       `json:"cost_usd"`
	InputTokens   int           `json:"input_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	DurationMS    int64         `json:"duration_ms"`
	FirstEventAt  time.Time     `json:"first_event_at"`
	LastEventAt   time.Time     `json:"last_event_at"`
}

// Totals sums metrics across buckets. File counts are of unique paths.
type Totals struct {
	Messages           int     `json:"messages"`
	TextChars          int     `json:"text_chars"`
	ThinkingChars      int     `json:"thinking_chars"`
	ToolCalls          int     `json:"tool_calls"`
	Searches           int     `json:"searches"`
	UniqueFilesRead    int     `json:"unique_files_read"`
	UniqueFilesWritten int     `json:"unique_files_written"`
	CostUSD            float64 `json:"cost_usd"`
	InputTokens        int     `json:"input_tokens"`
	OutputTokens       int     `json:"output_tokens"`
	DurationMS         int64   `json:"duration_ms"`
}

// RunSummary is the document written as run_summary.json.
type RunSummary struct {
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Totals      Totals            `json:"totals"`
	ByAgent     map[string]Totals `json:"by_agent"`
	Breakdown   []AgentMetrics    `json:"breakdown"`
}

// Tool names whose results carry search hits or file paths.
var (
	searchTools = map[string]bool{"WebSearch": true, "web_search": true}
	readTools   = map[string]bool{"Read": true}
	writeTools  = map[string]bool{"Write": true, "Edit": true}
)

type pendingCall struct {
	key    Key
	name   string
	path   string
	search int
}

// Recorder tracks events from concurrently running agents of one run.
type Recorder struct {
	runID        string
	messagesPath string
	summaryPath  string
	now          func() time.Time

	mu      sync.Mutex
	metrics map[Key]*AgentMetrics
	pending map[string]pendingCall
}

type messageLine struct {
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id"`
	Agent     string      `json:"agent"`
	Iteration int         `json:"iteration"`
	Type      string      `json:"type"`
	Event     agent.Event `json:"event"`
}

// NewRecorder creates messages.jsonl in runDir if needed. Existing lines are
// kept and new events are appended after them.
func NewRecorder(runDir string, runID string) (*Recorder, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	r := &Recorder{
		runID:        runID,
		messagesPath: filepath.Join(runDir, artifacts.MessagesFile),
		summaryPath:  filepath.Join(runDir, artifacts.SummaryFile),
		now:          time.Now,
		metrics:      make(map[Key]*AgentMetrics),
		pending:      make(map[string]pendingCall),
	}
	f, err := os.OpenFile(r.messagesPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", artifacts.MessagesFile, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", artifacts.MessagesFile, err)
	}
	return r, nil
}

// TrackEvent folds ev into the metrics of (agentName, iteration) and appends it to messages.jsonl.
func (r *Recorder) TrackEvent(ev agent.Event, agentName string, iteration int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := Key{Agent: agentName, Iteration: iteration}
	m := r.bucket(key, now)
	m.Messages++
	m.LastEventAt = now

	switch e := ev.(type) {
	case agent.TextEvent:
		m.TextChars += utf8.RuneCountInString(e.Text)
	case agent.ThinkingEvent:
		m.ThinkingChars += utf8.RuneCountInString(e.Text)
	case agent.ToolCallEvent:
		r.trackToolCall(m, key, e)
	case agent.ToolResultEvent:
		r.trackToolResult(e)
	case agent.CompletionEvent:
		m.CostUSD += e.CostUSD
		m.InputTokens += e.InputTokens
		m.OutputTokens += e.OutputTokens
		m.DurationMS += e.DurationMS
	}

	line, err := json.Marshal(messageLine{
		Timestamp: now.UTC(),
		RunID:     r.runID,
		Agent:     agentName,
		Iteration: iteration,
		Type:      ev.Kind(),
		Event:     ev,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return artifacts.AppendLine(r.messagesPath, line)
}

// Snapshot returns the current summary without writing it.
func (r *Recorder) Snapshot() *RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summarize()
}

// Finalize writes run_summary.json. It may be called more than once; each call
// overwrites the previous summary.
func (r *Recorder) Finalize() (*RunSummary, error) {
	summary := r.Snapshot()
	if err := artifacts.WriteJSON(r.summaryPath, summary); err != nil {
		return summary, fmt.Errorf("failed to write run summary: %w", err)
	}
	return summary, nil
}

func (r *Recorder) bucket(key Key, now time.Time) *AgentMetrics {
	m, ok := r.metrics[key]
	if !ok {
		m = &AgentMetrics{
			Agent:        key.Agent,
			Iteration:    key.Iteration,
			Searches:     []SearchQuery{},
			FilesRead:    []string{},
			FilesWritten: []string{},
			FirstEventAt: now,
		}
		r.metrics[key] = m
	}
	return m
}

func (r *Recorder) trackToolCall(m *AgentMetrics, key Key, e agent.ToolCallEvent) {
	m.ToolCalls++
	call := pendingCall{key: key, name: e.Name, search: -1}

	switch {
	case searchTools[e.Name]:
		query, _ := e.Input["query"].(string)
		m.Searches = append(m.Searches, SearchQuery{Query: query, ToolUseID: e.ID, Results: []SearchResult{}})
		call.search = len(m.Searches) - 1
	case readTools[e.Name] || writeTools[e.Name]:
		call.path = filePathInput(e.Input)
	}

	if e.ID != "" {
		r.pending[e.ID] = call
	}
}

func (r *Recorder) trackToolResult(e agent.ToolResultEvent) {
	call, ok := r.pending[e.ToolUseID]
	if !ok {
		return
	}
	delete(r.pending, e.ToolUseID)

	origin := r.metrics[call.key]
	if e.IsError {
		origin.ToolErrors++
		return
	}

	switch {
	case call.search >= 0:
		q := &origin.Searches[call.search]
		q.Results = append(q.Results, ParseSearchResults(e.Content)...)
	case call.path != "" && readTools[call.name]:
		origin.FilesRead = appendUnique(origin.FilesRead, call.path)
	case call.path != "" && writeTools[call.name]:
		origin.FilesWritten = appendUnique(origin.FilesWritten, call.path)
	}
}

func (r *Recorder) summarize() *RunSummary {
	summary := &RunSummary{
		RunID:       r.runID,
		GeneratedAt: r.now().UTC(),
		ByAgent:     make(map[string]Totals),
		Breakdown:   make([]AgentMetrics, 0, len(r.metrics)),
	}

	allRead := map[string]bool{}
	allWritten := map[string]bool{}
	agentRead := map[string]map[string]bool{}
	agentWritten := map[string]map[string]bool{}

	for _, m := range r.metrics {
		summary.Breakdown = append(summary.Breakdown, copyMetrics(m))
		addTotals(&summary.Totals, m)

		t := summary.ByAgent[m.Agent]
		addTotals(&t, m)
		summary.ByAgent[m.Agent] = t

		if agentRead[m.Agent] == nil {
			agentRead[m.Agent] = map[string]bool{}
			agentWritten[m.Agent] = map[string]bool{}
		}
		for _, f := range m.FilesRead {
			allRead[f] = true
			agentRead[m.Agent][f] = true
		}
		for _, f := range m.FilesWritten {
			allWritten[f] = true
			agentWritten[m.Agent][f] = true
		}
	}

	summary.Totals.UniqueFilesRead = len(allRead)
	summary.Totals.UniqueFilesWritten = len(allWritten)
	for name, t := range summary.ByAgent {
		t.UniqueFilesRead = len(agentRead[name])
		t.UniqueFilesWritten = len(agentWritten[name])
		summary.ByAgent[name] = t
	}

	sort.Slice(summary.Breakdown, func(i, j int) bool {
		a, b := summary.Breakdown[i], summary.Breakdown[j]
		if a.Iteration != b.Iteration {
			return a.Iteration < b.Iteration
		}
		return a.Agent < b.Agent
	})
	return summary
}

func addTotals(t *Totals, m *AgentMetrics) {
	t.Messages += m.Messages
	t.TextChars += m.TextChars
	t.ThinkingChars += m.ThinkingChars
	t.ToolCalls += m.ToolCalls
	t.Searches += len(m.Searches)
	t.CostUSD += m.CostUSD
	t.InputTokens += m.InputTokens
	t.OutputTokens += m.OutputTokens
	t.DurationMS += m.DurationMS
}

func copyMetrics(m *AgentMetrics) AgentMetrics {
	c := *m
	c.Searches = make([]SearchQuery, len(m.Searches))
	for i, s := range m.Searches {
		s.Results = append([]SearchResult{}, s.Results...)
		c.Searches[i] = s
	}
	c.FilesRead = append([]string{}, m.FilesRead...)
	c.FilesWritten = append([]string{}, m.FilesWritten...)
	return c
}

func filePathInput(input map[string]any) string {
	for _, key := range []string{"file_path", "path", "filename"} {
		if s, ok := input[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func appendUnique(list []string, s string) []string {
	for _, item := range list {
		if item == s {
			return list
		}
	}
	return append(list, s)
}
