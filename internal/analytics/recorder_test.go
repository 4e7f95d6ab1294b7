package analytics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jonathan/idea-forge/internal/agent"
	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestRecorder_TracksTextAndCompletion(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "20250101_120000")
	require.NoError(t, err)

	require.NoError(t, r.TrackEvent(agent.TextEvent{Text: "héllo"}, "analyst", 1))
	require.NoError(t, r.TrackEvent(agent.ThinkingEvent{Text: "hmm"}, "analyst", 1))
	require.NoError(t, r.TrackEvent(agent.CompletionEvent{CostUSD: 0.25, InputTokens: 100, OutputTokens: 40, DurationMS: 900}, "analyst", 1))
	require.NoError(t, r.TrackEvent(agent.CompletionEvent{CostUSD: 0.05, InputTokens: 10, OutputTokens: 4}, "reviewer", 1))

	summary, err := r.Finalize()
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Totals.Messages)
	assert.Equal(t, 5, summary.Totals.TextChars)
	assert.Equal(t, 3, summary.Totals.ThinkingChars)
	assert.InDelta(t, 0.30, summary.Totals.CostUSD, 1e-9)
	assert.Equal(t, 110, summary.Totals.InputTokens)
	assert.Equal(t, 44, summary.Totals.OutputTokens)
	require.Len(t, summary.Breakdown, 2)
	assert.Equal(t, "analyst", summary.Breakdown[0].Agent)
	assert.Equal(t, "reviewer", summary.Breakdown[1].Agent)
	assert.Equal(t, 3, summary.ByAgent["analyst"].Messages)

	lines := readLines(t, filepath.Join(dir, artifacts.MessagesFile))
	require.Len(t, lines, 4)
	assert.Equal(t, "text", lines[0]["type"])
	assert.Equal(t, "analyst", lines[0]["agent"])
	assert.Equal(t, float64(1), lines[0]["iteration"])
	assert.Equal(t, "result", lines[3]["type"])

	var onDisk RunSummary
	require.NoError(t, artifacts.ReadJSON(filepath.Join(dir, artifacts.SummaryFile), &onDisk))
	assert.Equal(t, "20250101_120000", onDisk.RunID)
	assert.Equal(t, 4, onDisk.Totals.Messages)
}

func TestRecorder_SearchResultsAttributedToQuery(t *testing.T) {
	r, err := NewRecorder(t.TempDir(), "run")
	require.NoError(t, err)

	require.NoError(t, r.TrackEvent(agent.ToolCallEvent{ID: "s1", Name: "WebSearch", Input: map[string]any{"query": "fitness app market size"}}, "fact_checker", 2))
	require.NoError(t, r.TrackEvent(agent.ToolCallEvent{ID: "s2", Name: "web_search", Input: map[string]any{"query": "strava revenue"}}, "fact_checker", 2))
	// Results arrive out of order and one is wrapped in a JSON string.
	require.NoError(t, r.TrackEvent(agent.ToolResultEvent{
		ToolUseID: "s2",
		Content:   json.RawMessage(`"[{\"title\":\"Strava\",\"url\":\"https://strava.com\"}]"`),
	}, "fact_checker", 2))
	require.NoError(t, r.TrackEvent(agent.ToolResultEvent{
		ToolUseID: "s1",
		Content:   json.RawMessage(`{"results":[{"title":"Report","url":"https://example.com/r"},{"title":"Blog","url":"https://example.com/b"}]}`),
	}, "fact_checker", 2))

	summary := r.Snapshot()
	require.Len(t, summary.Breakdown, 1)
	m := summary.Breakdown[0]
	require.Len(t, m.Searches, 2)
	assert.Equal(t, "fitness app market size", m.Searches[0].Query)
	assert.Equal(t, []SearchResult{{Title: "Report", URL: "https://example.com/r"}, {Title: "Blog", URL: "https://example.com/b"}}, m.Searches[0].Results)
	assert.Equal(t, []SearchResult{{Title: "Strava", URL: "https://strava.com"}}, m.Searches[1].Results)
	assert.Equal(t, 2, summary.Totals.Searches)
}

func TestRecorder_FileTools(t *testing.T) {
	r, err := NewRecorder(t.TempDir(), "run")
	require.NoError(t, err)

	track := func(ev agent.Event, name string, iteration int) {
		require.NoError(t, r.TrackEvent(ev, name, iteration))
	}
	track(agent.ToolCallEvent{ID: "r1", Name: "Read", Input: map[string]any{"file_path": "analysis.md"}}, "reviewer", 1)
	track(agent.ToolResultEvent{ToolUseID: "r1", Content: json.RawMessage(`"# analysis"`)}, "reviewer", 1)
	track(agent.ToolCallEvent{ID: "r2", Name: "Read", Input: map[string]any{"file_path": "analysis.md"}}, "reviewer", 1)
	track(agent.ToolResultEvent{ToolUseID: "r2"}, "reviewer", 1)
	track(agent.ToolCallEvent{ID: "w1", Name: "Write", Input: map[string]any{"file_path": "fb.json"}}, "reviewer", 1)
	track(agent.ToolResultEvent{ToolUseID: "w1"}, "reviewer", 1)
	track(agent.ToolCallEvent{ID: "e1", Name: "Edit", Input: map[string]any{"file_path": "other.json"}}, "analyst", 2)
	track(agent.ToolResultEvent{ToolUseID: "e1", IsError: true}, "analyst", 2)
	track(agent.ToolResultEvent{ToolUseID: "unknown"}, "analyst", 2)

	summary := r.Snapshot()
	require.Len(t, summary.Breakdown, 2)
	reviewer := summary.Breakdown[0]
	assert.Equal(t, []string{"analysis.md"}, reviewer.FilesRead)
	assert.Equal(t, []string{"fb.json"}, reviewer.FilesWritten)
	analyst := summary.Breakdown[1]
	assert.Empty(t, analyst.FilesWritten)
	assert.Equal(t, 1, analyst.ToolErrors)

	assert.Equal(t, 1, summary.Totals.UniqueFilesRead)
	assert.Equal(t, 1, summary.Totals.UniqueFilesWritten)
	assert.Equal(t, 4, summary.Totals.ToolCalls)
}

func TestRecorder_ConcurrentAgents(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "run")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, name := range []string{"reviewer", "fact_checker"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.NoError(t, r.TrackEvent(agent.TextEvent{Text: "ab"}, name, 1))
			}
		}(name)
	}
	wg.Wait()

	summary, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 200, summary.Totals.Messages)
	assert.Equal(t, 400, summary.Totals.TextChars)
	assert.Len(t, readLines(t, filepath.Join(dir, artifacts.MessagesFile)), 200)
}

func TestRecorder_FinalizeIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "run")
	require.NoError(t, err)

	require.NoError(t, r.TrackEvent(agent.TextEvent{Text: "a"}, "analyst", 1))
	first, err := r.Finalize()
	require.NoError(t, err)
	require.NoError(t, r.TrackEvent(agent.TextEvent{Text: "b"}, "analyst", 2))
	second, err := r.Finalize()
	require.NoError(t, err)

	assert.Equal(t, 1, first.Totals.Messages)
	assert.Equal(t, 2, second.Totals.Messages)

	var onDisk RunSummary
	require.NoError(t, artifacts.ReadJSON(filepath.Join(dir, artifacts.SummaryFile), &onDisk))
	assert.Equal(t, 2, onDisk.Totals.Messages)
}

func TestNewRecorder_KeepsExistingMessages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, artifacts.MessagesFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"prior":1}`+"\n"), 0o644))

	rec, err := NewRecorder(dir, "run")
	require.NoError(t, err)
	require.NoError(t, rec.TrackEvent(agent.TextEvent{Text: "hi"}, "analyst", 1))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"prior":1}`, lines[0])
	assert.Contains(t, lines[1], `"agent":"analyst"`)
}

func TestNewRecorder_CreatesMessagesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")

	_, err := NewRecorder(dir, "run")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, artifacts.MessagesFile))
}

func TestParseSearchResults(t *testing.T) {
	assert.Nil(t, ParseSearchResults(nil))
	assert.Nil(t, ParseSearchResults(json.RawMessage(`"plain text, no json"`)))
	assert.Empty(t, ParseSearchResults(json.RawMessage(`{"title":"no url"}`)))
	assert.Equal(t,
		[]SearchResult{{Title: "", URL: "https://a"}},
		ParseSearchResults(json.RawMessage(`[{"url":"https://a"}]`)))
}
