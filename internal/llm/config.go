// Package llm provides the model configuration and streaming client used by the
// model-backed agents.
package llm

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is for cheap, short tasks
	TierLite ModelTier = "lite"
	// TierStandard is for structured critique: reviewing and fact-checking
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form drafting and revision
	TierAdvanced ModelTier = "advanced"
)

// ParseTier maps a configured tier name onto a ModelTier, defaulting to TierStandard.
func ParseTier(s string) ModelTier {
	switch ModelTier(s) {
	case TierLite, TierStandard, TierAdvanced:
		return ModelTier(s)
	}
	return TierStandard
}

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// DefaultTemperature keeps drafts and verdicts stable between iterations.
const DefaultTemperature float32 = 0.2

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: DefaultTemperature,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider:    c.Provider,
		Models:      make(map[ModelTier]string, len(c.Models)+1),
		Temperature: c.Temperature,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
