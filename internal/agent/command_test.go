package agent

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestParseStreamLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Event
		failure string
		wantErr bool
	}{
		{name: "blank", line: "   "},
		{name: "text", line: `{"type":"text","text":"hello"}`, want: TextEvent{Text: "hello"}},
		{name: "thinking field", line: `{"type":"thinking","thinking":"hmm"}`, want: ThinkingEvent{Text: "hmm"}},
		{name: "thinking as text", line: `{"type":"thinking","text":"hmm"}`, want: ThinkingEvent{Text: "hmm"}},
		{
			name: "tool use",
			line: `{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"a.md"}}`,
			want: ToolCallEvent{ID: "t1", Name: "Read", Input: map[string]any{"file_path": "a.md"}},
		},
		{
			name: "tool result",
			line: `{"type":"tool_result","tool_use_id":"t1","content":"ok","is_error":true}`,
			want: ToolResultEvent{ToolUseID: "t1", Content: []byte(`"ok"`), IsError: true},
		},
		{
			name: "result",
			line: `{"type":"result","cost_usd":0.25,"input_tokens":100,"output_tokens":50,"duration_ms":1200}`,
			want: CompletionEvent{CostUSD: 0.25, InputTokens: 100, OutputTokens: 50, DurationMS: 1200},
		},
		{
			name:    "result with error",
			line:    `{"type":"result","is_error":true,"error":"rate limited"}`,
			want:    CompletionEvent{},
			failure: "rate limited",
		},
		{name: "unknown type", line: `{"type":"system","subtype":"init"}`},
		{name: "not json", line: `Starting up...`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, failure, err := ParseStreamLine([]byte(tt.line))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
			assert.Equal(t, tt.failure, failure)
		})
	}
}

func TestNewCommandAgent_EmptyCommand(t *testing.T) {
	_, err := NewCommandAgent("analyst", nil, 0, nil)
	assert.Error(t, err)
}

func TestCommandAgent_Process(t *testing.T) {
	requireShell(t)
	out := filepath.Join(t.TempDir(), "iteration_1.md")
	script := `cat >/dev/null
echo '{"type":"text","text":"drafting"}'
echo 'progress: 50%'
echo '{"type":"tool_use","id":"t1","name":"WebSearch","input":{"query":"fitness apps"}}'
printf '# Analysis\n\nBody text here' > "$IDEA_FORGE_OUTPUT_PATH"
echo '{"type":"result","cost_usd":0.5,"input_tokens":10,"output_tokens":20,"duration_ms":30}'`

	a, err := NewCommandAgent("analyst", []string{"sh", "-c", script}, 10*time.Second, nil)
	require.NoError(t, err)

	var events []Event
	err = Invoke(context.Background(), a, Request{Input: "AI fitness app", OutputPath: out, Iteration: 1}, func(ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, TextEvent{Text: "drafting"}, events[0])
	assert.Equal(t, "WebSearch", events[1].(ToolCallEvent).Name)
	assert.Equal(t, 0.5, events[2].(CompletionEvent).CostUSD)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "# Analysis\n\nBody text here", string(data))
}

func TestCommandAgent_ReceivesRequestOnStdin(t *testing.T) {
	requireShell(t)
	out := filepath.Join(t.TempDir(), "request.json")

	a, err := NewCommandAgent("reviewer", []string{"sh", "-c", `cat > "$IDEA_FORGE_OUTPUT_PATH"`}, 0, nil)
	require.NoError(t, err)

	req := Request{Input: "analysis body", OutputPath: out, Iteration: 2, Extra: map[string]string{ExtraIdea: "idea"}}
	require.NoError(t, Invoke(context.Background(), a, req, nil))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"input":"analysis body"`)
	assert.Contains(t, string(data), `"iteration":2`)
}

func TestCommandAgent_ExitFailureUsesStderr(t *testing.T) {
	requireShell(t)
	a, err := NewCommandAgent("analyst", []string{"sh", "-c", "echo 'model unavailable' >&2; exit 3"}, 0, nil)
	require.NoError(t, err)

	err = Invoke(context.Background(), a, Request{}, nil)
	var agentErr *Error
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, "model unavailable", agentErr.Message)
}

func TestCommandAgent_ReportedFailure(t *testing.T) {
	requireShell(t)
	a, err := NewCommandAgent("analyst", []string{"sh", "-c", `echo '{"type":"result","is_error":true,"error":"context window exceeded"}'`}, 0, nil)
	require.NoError(t, err)

	err = Invoke(context.Background(), a, Request{}, nil)
	var agentErr *Error
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, "context window exceeded", agentErr.Message)
}

func TestCommandAgent_Timeout(t *testing.T) {
	requireShell(t)
	a, err := NewCommandAgent("analyst", []string{"sh", "-c", "exec sleep 5"}, 100*time.Millisecond, nil)
	require.NoError(t, err)

	err = Invoke(context.Background(), a, Request{}, nil)
	var agentErr *Error
	require.True(t, errors.As(err, &agentErr))
	assert.Contains(t, agentErr.Message, "timed out")
}

func TestCommandAgent_OversizedLine(t *testing.T) {
	requireShell(t)
	script := `head -c 9000000 /dev/zero | tr '\000' a; echo; echo '{"type":"text","text":"after"}'`
	a, err := NewCommandAgent("analyst", []string{"sh", "-c", script}, 30*time.Second, nil)
	require.NoError(t, err)

	err = Invoke(context.Background(), a, Request{}, nil)
	var agentErr *Error
	require.True(t, errors.As(err, &agentErr), "got %v", err)
	assert.Equal(t, "failed to read agent output", agentErr.Message)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}
