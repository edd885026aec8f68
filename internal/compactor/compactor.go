// Package compactor condenses a window of conversation history plus any
// prior digest into a compact bullet digest via the completion gateway.
// Compaction is always explicit: a caller triggers it, persists the result,
// and owns retry policy. Nothing here runs in the background.
package compactor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatstage/internal/logging"
	"chatstage/internal/types"
)

const (
	defaultTranscriptBudget = 12000
	defaultTimeout          = 5 * time.Minute
)

const summarySystemPrompt = "You are the memory keeper for a roleplay group chat. " +
	"You condense conversation history into durable facts the characters must remember."

const summaryInstruction = `Summarize the conversation above into 8-20 terse bullet facts.
Rules:
- One fact per bullet, shortest possible phrasing.
- Only record what actually happened or was said; never invent details.
- Keep names exactly as written.
- Merge in the existing memory below: keep its facts unless the new
  conversation contradicts them, then keep the newer version.

Existing memory:
%s`

// Compactor builds a bounded transcript and delegates summarization to the
// gateway.
type Compactor struct {
	client  types.LLMClient
	budget  int
	timeout time.Duration
}

// New creates a Compactor. budget caps the transcript in runes; timeout
// bounds the gateway call. Zero values fall back to defaults.
func New(client types.LLMClient, budget int, timeout time.Duration) *Compactor {
	if budget <= 0 {
		budget = defaultTranscriptBudget
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Compactor{client: client, budget: budget, timeout: timeout}
}

// Compact summarizes the last lookbackRounds rounds of messages, merging
// previousDigest through the prompt. The returned text fully replaces any
// stored digest; persisting it is the caller's job. Gateway errors surface
// unchanged with no retry.
func (c *Compactor) Compact(ctx context.Context, conversation types.Conversation, messages []types.Message, lookbackRounds int, previousDigest string) (string, error) {
	transcript := BuildTranscript(messages, lookbackRounds, c.budget)
	if transcript == "" {
		return "", fmt.Errorf("nothing to compact: conversation %s has no messages in the lookback window", conversation.ID)
	}

	logging.MemoryDebug("Compacting: conversation=%s rounds=%d transcript_runes=%d prev_len=%d",
		conversation.ID, lookbackRounds, len([]rune(transcript)), len(previousDigest))

	prev := previousDigest
	if prev == "" {
		prev = "(none)"
	}

	blocks := []types.ChatMessage{
		{Role: "system", Text: summarySystemPrompt},
		{Role: "user", Text: transcript + "\n\n" + fmt.Sprintf(summaryInstruction, prev)},
	}

	digest, err := c.client.Generate(ctx, blocks, types.GenerationOptions{Timeout: c.timeout})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(digest), nil
}

// BuildTranscript walks the history newest to oldest, counting one round per
// self-authored message. Once the round counter reaches lookbackRounds the
// walk stops, but only after completing that boundary message, so every
// message at or after the oldest counted self message is included. The
// collected lines come back in chronological order, truncated from the
// oldest end to the rune budget.
func BuildTranscript(messages []types.Message, lookbackRounds int, budget int) string {
	if lookbackRounds <= 0 {
		lookbackRounds = 1
	}

	var lines []string
	rounds := 0
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		lines = append(lines, m.AuthorName+": "+types.RenderMarker(m))
		if m.IsSelf() {
			rounds++
			if rounds >= lookbackRounds {
				break
			}
		}
	}

	// Reverse back to chronological order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}

	return truncateHead(strings.Join(lines, "\n"), budget)
}

// truncateHead keeps the most recent content, dropping whole lines from the
// oldest end until the text fits the budget.
func truncateHead(s string, budget int) string {
	if budget <= 0 || len([]rune(s)) <= budget {
		return s
	}
	lines := strings.Split(s, "\n")
	for len(lines) > 1 && len([]rune(strings.Join(lines, "\n"))) > budget {
		lines = lines[1:]
	}
	out := strings.Join(lines, "\n")
	if runes := []rune(out); len(runes) > budget {
		out = string(runes[len(runes)-budget:])
	}
	return out
}
