package gateway

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"chatstage/internal/logging"
	"chatstage/internal/types"
)

// GeminiClient implements types.LLMClient using the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed gateway client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Generate sends one completion request. System blocks become the system
// instruction; user blocks become the content turns.
func (c *GeminiClient) Generate(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
	const op = "gemini.generate"

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var systemParts []string
	var contents []*genai.Content
	for _, m := range messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Text)
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleUser))
	}
	if len(contents) == 0 {
		// The API rejects empty contents; promote the instruction block.
		contents = append(contents, genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser))
		systemParts = nil
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if len(systemParts) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser)
	}

	logging.GatewayDebug("Gemini request: model=%s blocks=%d", c.model, len(messages))

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", wrapErr(op, ctx, err)
	}

	text := result.Text()
	if text == "" {
		return "", &GatewayError{Op: op, Err: fmt.Errorf("no completion returned")}
	}
	return strings.TrimSpace(text), nil
}
