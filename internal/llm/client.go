package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Request is one prompt sent to a model.
type Request struct {
	System string
	Prompt string
	Tier   ModelTier
	// JSON asks the model for an application/json response.
	JSON bool
}

// Usage reports token counts for a completed request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Client is an abstraction over LLM providers
type Client interface {
	// Stream sends req and calls onText for every chunk of generated text, in order.
	// An error from onText aborts the stream and is returned.
	Stream(ctx context.Context, req Request, onText func(string) error) (Usage, error)
	// Model returns the provider model name used for a tier
	Model(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Stream generates content for req, delivering text chunks as they arrive
func (c *GeminiClient) Stream(ctx context.Context, req Request, onText func(string) error) (Usage, error) {
	var usage Usage

	modelName := c.config.GetModel(req.Tier)
	if modelName == "" {
		return usage, fmt.Errorf("no model configured for tier %s", req.Tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	iter := model.GenerateContentStream(ctx, genai.Text(req.Prompt))
	received := false
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return usage, fmt.Errorf("failed to generate content: %w", err)
		}

		if resp.UsageMetadata != nil {
			usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}

		text := chunkText(resp)
		if text == "" {
			continue
		}
		received = true
		if err := onText(text); err != nil {
			return usage, err
		}
	}

	if !received {
		return usage, fmt.Errorf("no text in response from %s", modelName)
	}
	return usage, nil
}

// Model returns the model name for a tier
func (c *GeminiClient) Model(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// chunkText extracts the text parts of the first candidate in a streamed response.
func chunkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	return strings.Join(parts, "")
}
