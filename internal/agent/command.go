package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Environment variables set for command agents in addition to the JSON request on stdin.
const (
	EnvOutputPath = "IDEA_FORGE_OUTPUT_PATH"
	EnvIteration  = "IDEA_FORGE_ITERATION"
	EnvRole       = "IDEA_FORGE_ROLE"
)

const maxStreamLine = 8 * 1024 * 1024

// CommandAgent runs an external program per invocation. The request is written to
// stdin as JSON and stdout is read as one stream-JSON event per line:
//
//	{"type":"text","text":"..."}
//	{"type":"thinking","thinking":"..."}
//	{"type":"tool_use","id":"...","name":"...","input":{...}}
//	{"type":"tool_result","tool_use_id":"...","content":...,"is_error":false}
//	{"type":"result","cost_usd":0.01,"input_tokens":1,"output_tokens":2,"duration_ms":3,"is_error":false,"error":""}
//
// Lines that are not JSON objects are ignored.
type CommandAgent struct {
	name    string
	command []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommandAgent creates a command agent. command[0] is the executable.
func NewCommandAgent(name string, command []string, timeout time.Duration, logger *slog.Logger) (*CommandAgent, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("command agent %s: command is empty", name)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CommandAgent{name: name, command: command, timeout: timeout, logger: logger}, nil
}

// Name returns the configured agent name.
func (c *CommandAgent) Name() string {
	return c.name
}

// Process implements Agent.
func (c *CommandAgent) Process(ctx context.Context, req Request, events chan<- Event) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return &Error{Agent: c.name, Message: "failed to encode request", Cause: err}
	}

	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		EnvOutputPath+"="+req.OutputPath,
		EnvIteration+"="+strconv.Itoa(req.Iteration),
		EnvRole+"="+c.name,
	)
	cmd.WaitDelay = 2 * time.Second
	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Error{Agent: c.name, Message: "failed to open stdout", Cause: err}
	}
	if err := cmd.Start(); err != nil {
		return &Error{Agent: c.name, Message: fmt.Sprintf("failed to start %s", c.command[0]), Cause: err}
	}

	var reported string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for scanner.Scan() {
		ev, failure, err := ParseStreamLine(scanner.Bytes())
		if err != nil {
			c.logger.Debug("skipping unparseable agent output", "agent", c.name, "error", err)
			continue
		}
		if failure != "" {
			reported = failure
		}
		if ev == nil {
			continue
		}
		if err := Emit(ctx, events, ev); err != nil {
			break
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		c.logger.Warn("stopped reading agent output", "agent", c.name, "error", scanErr)
	}
	// Drain whatever is left so the process can exit.
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &Error{Agent: c.name, Message: fmt.Sprintf("timed out after %s", c.timeout), Cause: ctx.Err()}
		}
		return ctx.Err()
	}
	if reported != "" {
		return &Error{Agent: c.name, Message: reported}
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return &Error{Agent: c.name, Message: msg, Cause: waitErr}
	}
	if scanErr != nil {
		return &Error{Agent: c.name, Message: "failed to read agent output", Cause: scanErr}
	}
	return nil
}

type streamLine struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	Thinking     string          `json:"thinking"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Input        map[string]any  `json:"input"`
	ToolUseID    string          `json:"tool_use_id"`
	Content      json.RawMessage `json:"content"`
	IsError      bool            `json:"is_error"`
	Error        string          `json:"error"`
	CostUSD      float64         `json:"cost_usd"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	DurationMS   int64           `json:"duration_ms"`
}

// ParseStreamLine decodes one stream-JSON line. It returns a nil event for blank
// lines and unknown types, and a non-empty failure message when a result line
// reports an error.
func ParseStreamLine(line []byte) (Event, string, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, "", nil
	}

	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return nil, "", err
	}

	switch sl.Type {
	case "text":
		return TextEvent{Text: sl.Text}, "", nil
	case "thinking":
		text := sl.Thinking
		if text == "" {
			text = sl.Text
		}
		return ThinkingEvent{Text: text}, "", nil
	case "tool_use":
		return ToolCallEvent{ID: sl.ID, Name: sl.Name, Input: sl.Input}, "", nil
	case "tool_result":
		return ToolResultEvent{ToolUseID: sl.ToolUseID, Content: sl.Content, IsError: sl.IsError}, "", nil
	case "result":
		ev := CompletionEvent{
			CostUSD:      sl.CostUSD,
			InputTokens:  sl.InputTokens,
			OutputTokens: sl.OutputTokens,
			DurationMS:   sl.DurationMS,
		}
		if sl.IsError {
			msg := sl.Error
			if msg == "" {
				msg = "agent reported an error"
			}
			return ev, msg, nil
		}
		return ev, "", nil
	default:
		return nil, "", nil
	}
}
