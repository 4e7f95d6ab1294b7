package agent

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/llm"
	"github.com/jonathan/idea-forge/internal/prompts"
)

// LLMAgent drafts, reviews or fact-checks through a streaming model client.
// Text chunks are forwarded as TextEvents and the full response is written to
// req.OutputPath once the stream ends.
type LLMAgent struct {
	role    Role
	client  llm.Client
	prompts *prompts.Loader
	tier    llm.ModelTier
}

// NewLLMAgent creates a model-backed agent for role.
func NewLLMAgent(role Role, client llm.Client, loader *prompts.Loader, tier llm.ModelTier) *LLMAgent {
	return &LLMAgent{role: role, client: client, prompts: loader, tier: tier}
}

// Name returns the role name.
func (a *LLMAgent) Name() string {
	return string(a.role)
}

// Process implements Agent.
func (a *LLMAgent) Process(ctx context.Context, req Request, events chan<- Event) error {
	start := time.Now()

	system, prompt, err := a.buildPrompt(req)
	if err != nil {
		return &Error{Agent: a.Name(), Message: err.Error(), Cause: err}
	}

	var out strings.Builder
	usage, err := a.client.Stream(ctx, llm.Request{
		System: system,
		Prompt: prompt,
		Tier:   a.tier,
		JSON:   a.role != RoleAnalyst,
	}, func(chunk string) error {
		out.WriteString(chunk)
		return Emit(ctx, events, TextEvent{Text: chunk})
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Agent: a.Name(), Message: err.Error(), Cause: err}
	}

	if err := artifacts.WriteFileAtomic(req.OutputPath, []byte(out.String()), 0o644); err != nil {
		return &Error{Agent: a.Name(), Message: "failed to write output", Cause: err}
	}

	return Emit(ctx, events, CompletionEvent{
		CostUSD:      llm.EstimateCost(a.client.Model(a.tier), usage),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		DurationMS:   time.Since(start).Milliseconds(),
	})
}

func (a *LLMAgent) buildPrompt(req Request) (string, string, error) {
	file := string(a.role) + ".json"
	system, err := a.prompts.Get(file, "system")
	if err != nil {
		return "", "", err
	}

	data := map[string]string{
		"Idea":      req.Extra[ExtraIdea],
		"Iteration": strconv.Itoa(req.Iteration),
		"Template":  req.Extra[ExtraTemplate],
	}

	var key string
	switch a.role {
	case RoleAnalyst:
		data["Idea"] = req.Input
		key = "initial"
		if req.Revision != nil {
			key = "revision"
			data["PreviousAnalysis"] = readOptional(req.Revision.PreviousAnalysisPath)
			data["Feedback"] = readOptional(req.Revision.FeedbackPath)
			data["FactCheck"] = readOptional(req.Revision.FactCheckPath)
		}
	case RoleReviewer:
		data["Analysis"] = req.Input
		key = "review"
	case RoleFactChecker:
		data["Analysis"] = req.Input
		key = "check"
	default:
		return "", "", fmt.Errorf("unknown agent role %q", a.role)
	}

	prompt, err := a.prompts.Render(file, key, data)
	if err != nil {
		return "", "", err
	}
	return system, prompt, nil
}

func readOptional(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
