package gateway

import (
	"context"
	"fmt"

	"chatstage/internal/config"
	"chatstage/internal/types"
)

// NewClientFromConfig creates an LLM client from the configured provider.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (types.LLMClient, error) {
	switch cfg.LLM.Provider {
	case "openai", "":
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("no API key configured; set llm.api_key or OPENAI_API_KEY")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.InteractiveTimeout(),
		}), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (valid: openai, gemini, mock)", cfg.LLM.Provider)
	}
}
