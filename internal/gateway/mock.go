package gateway

import (
	"context"
	"fmt"
	"strings"

	"chatstage/internal/types"
)

// MockClient is the "mock" provider: a deterministic offline gateway for
// trying the CLI without an API key. It answers as the first character named
// in the task block, echoing that the wiring works.
type MockClient struct{}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Generate fabricates a minimal speaker-tagged completion from the request.
func (c *MockClient) Generate(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &GatewayError{Op: "mock.generate", Err: err}
	}
	name := firstSpeakerName(messages)
	if name == "" {
		return "", nil
	}
	return fmt.Sprintf("[%s]（测试回复）收到。", name), nil
}

// firstSpeakerName pulls the first character name out of the "Characters"
// section of the system block.
func firstSpeakerName(messages []types.ChatMessage) string {
	for _, m := range messages {
		if m.Role != "system" {
			continue
		}
		lines := strings.Split(m.Text, "\n")
		for i, line := range lines {
			if strings.HasPrefix(line, "## Characters") {
				for _, l := range lines[i+1:] {
					l = strings.TrimSpace(strings.TrimPrefix(l, "-"))
					if l == "" || strings.HasPrefix(l, "#") {
						continue
					}
					if cut := strings.IndexAny(l, " (:"); cut > 0 {
						return l[:cut]
					}
					return l
				}
			}
		}
	}
	return ""
}
