// Package orchestrator wires the conversation pipeline: context assembly,
// the gateway call, response parsing, and paced delivery, plus the explicit
// memory compaction flow. It owns the per-conversation reentrancy guards.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatstage/internal/assembler"
	"chatstage/internal/compactor"
	"chatstage/internal/config"
	"chatstage/internal/logging"
	"chatstage/internal/parser"
	"chatstage/internal/scheduler"
	"chatstage/internal/types"
)

// Options tune one orchestrator instance.
type Options struct {
	Assembler       assembler.Options
	Scheduler       scheduler.Config
	Clock           scheduler.Clock
	TurnTimeout     time.Duration // gateway ceiling for interactive turns
	MaxOutputTokens int
	LookbackRounds  int // default compaction window when the caller passes 0
	CompactBudget   int
	CompactTimeout  time.Duration
}

// Orchestrator coordinates group replies and memory compaction over one
// repository and one gateway client.
type Orchestrator struct {
	repo   types.Repository
	client types.LLMClient
	sched  *scheduler.Scheduler
	comp   *compactor.Compactor
	opts   Options
	guards *guard
}

// New creates an Orchestrator.
func New(repo types.Repository, client types.LLMClient, opts Options) *Orchestrator {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 60 * time.Second
	}
	if opts.LookbackRounds <= 0 {
		opts.LookbackRounds = 20
	}
	return &Orchestrator{
		repo:   repo,
		client: client,
		sched:  scheduler.New(repo, opts.Clock, opts.Scheduler),
		comp:   compactor.New(client, opts.CompactBudget, opts.CompactTimeout),
		opts:   opts,
		guards: newGuard(),
	}
}

// NewFromConfig creates an Orchestrator with options derived from config.
func NewFromConfig(repo types.Repository, client types.LLMClient, cfg *config.Config, clock scheduler.Clock) *Orchestrator {
	min, max, perRune := cfg.PacingBounds()
	return New(repo, client, Options{
		Assembler: assembler.Options{
			HistoryWindow:      cfg.Context.HistoryWindow,
			LorebookScanWindow: cfg.Context.LorebookScanWindow,
			ReplyPreviewRunes:  cfg.Context.ReplyPreviewRunes,
		},
		Scheduler:       scheduler.Config{MinDelay: min, MaxDelay: max, PerRune: perRune},
		Clock:           clock,
		TurnTimeout:     cfg.InteractiveTimeout(),
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		LookbackRounds:  cfg.Memory.LookbackRounds,
		CompactBudget:   cfg.Memory.TranscriptBudget,
		CompactTimeout:  cfg.CompactionTimeout(),
	})
}

// TurnResult summarizes one group-reply turn.
type TurnResult struct {
	Delivered       int
	DroppedSpeakers int
	DroppedLines    int
	// ParseEmpty is set when the completion contained no recognizable
	// speaker lines. Not an error; the caller may surface a notice.
	ParseEmpty bool
}

// RequestGroupReply runs one full turn for a conversation: assemble context,
// call the gateway, parse, deliver. It blocks until delivery finishes; run
// it in a goroutine for a fire-and-forget surface. A second call while a
// turn is delivering returns types.ErrBusy. Input errors are rejected
// before any gateway call; gateway errors propagate unchanged and commit
// nothing.
func (o *Orchestrator) RequestGroupReply(ctx context.Context, conversationID string, targetIDs ...string) (TurnResult, error) {
	if conversationID == "" {
		return TurnResult{}, fmt.Errorf("conversation id required")
	}

	key := "reply:" + conversationID
	if !o.guards.tryAcquire(key) {
		return TurnResult{}, fmt.Errorf("delivery in flight for %s: %w", conversationID, types.ErrBusy)
	}
	defer o.guards.release(key)

	conversation, err := o.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to load conversation: %w", err)
	}

	members, err := o.repo.ListMembers(ctx, conversationID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to load members: %w", err)
	}
	if len(members) == 0 {
		return TurnResult{}, types.ErrNoMembers
	}

	targetNames, err := resolveTargets(members, targetIDs)
	if err != nil {
		return TurnResult{}, err
	}

	in, err := o.buildInput(ctx, conversation, members, targetNames)
	if err != nil {
		return TurnResult{}, err
	}

	blocks := assembler.Build(in, o.opts.Assembler)

	logging.Session("Requesting group reply: conversation=%s members=%d targets=%d",
		conversationID, len(members), len(targetNames))

	completion, err := o.client.Generate(ctx, blocks, types.GenerationOptions{
		MaxOutputTokens: o.opts.MaxOutputTokens,
		Timeout:         o.opts.TurnTimeout,
	})
	if err != nil {
		// The whole turn fails as one unit; nothing was delivered.
		return TurnResult{}, err
	}

	parsed := parser.Parse(completion)
	result := TurnResult{DroppedLines: parsed.DroppedLines}
	if parsed.Empty() {
		result.ParseEmpty = true
		logging.Session("Completion had no speaker lines: conversation=%s dropped=%d",
			conversationID, parsed.DroppedLines)
		return result, nil
	}

	out, err := o.sched.Deliver(ctx, conversationID, parsed.Utterances, members)
	result.Delivered = out.Delivered
	result.DroppedSpeakers = out.DroppedSpeakers
	return result, err
}

// RequestMemoryCompaction condenses the conversation history into a new
// digest and persists it wholesale. lookbackRounds <= 0 uses the configured
// default. A second call while one is in flight returns types.ErrBusy.
func (o *Orchestrator) RequestMemoryCompaction(ctx context.Context, conversationID string, lookbackRounds int) (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("conversation id required")
	}
	if lookbackRounds <= 0 {
		lookbackRounds = o.opts.LookbackRounds
	}

	key := "compact:" + conversationID
	if !o.guards.tryAcquire(key) {
		return "", fmt.Errorf("compaction in flight for %s: %w", conversationID, types.ErrBusy)
	}
	defer o.guards.release(key)

	conversation, err := o.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}

	messages, err := o.repo.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	previous := ""
	if d, err := o.repo.GetDigest(ctx, conversationID); err == nil {
		previous = d.Content
	} else if !errors.Is(err, types.ErrNotFound) {
		return "", fmt.Errorf("failed to load digest: %w", err)
	}

	digest, err := o.comp.Compact(ctx, conversation, messages, lookbackRounds, previous)
	if err != nil {
		return "", err
	}

	if err := o.repo.SetDigest(ctx, types.MemoryDigest{
		ConversationID: conversationID,
		Content:        digest,
		UpdatedAt:      time.Now(),
	}); err != nil {
		return "", fmt.Errorf("failed to persist digest: %w", err)
	}

	logging.Session("Memory compacted: conversation=%s digest_len=%d", conversationID, len(digest))
	return digest, nil
}

// buildInput gathers everything the assembler needs for one turn.
func (o *Orchestrator) buildInput(ctx context.Context, conversation types.Conversation, members []types.Participant, targetNames []string) (assembler.BuildInput, error) {
	presets, err := o.repo.ListStylePresets(ctx)
	if err != nil {
		return assembler.BuildInput{}, fmt.Errorf("failed to load style presets: %w", err)
	}
	lorebook, err := o.repo.ListLorebook(ctx)
	if err != nil {
		return assembler.BuildInput{}, fmt.Errorf("failed to load lorebook: %w", err)
	}
	facts, err := o.repo.ListFacts(ctx)
	if err != nil {
		return assembler.BuildInput{}, fmt.Errorf("failed to load facts: %w", err)
	}
	history, err := o.repo.ListMessages(ctx, conversation.ID, o.opts.Assembler.HistoryWindow)
	if err != nil {
		return assembler.BuildInput{}, fmt.Errorf("failed to load history: %w", err)
	}

	digest := ""
	if d, err := o.repo.GetDigest(ctx, conversation.ID); err == nil {
		digest = d.Content
	} else if !errors.Is(err, types.ErrNotFound) {
		return assembler.BuildInput{}, fmt.Errorf("failed to load digest: %w", err)
	}

	now := time.Now()
	if o.opts.Clock != nil {
		now = o.opts.Clock.Now()
	}

	return assembler.BuildInput{
		Conversation: conversation,
		Members:      members,
		Presets:      presets,
		Lorebook:     lorebook,
		Facts:        facts,
		History:      history,
		Digest:       digest,
		Now:          now.Format("2006-01-02 15:04"),
		TargetNames:  targetNames,
	}, nil
}

// resolveTargets maps target participant ids to display names. Unknown ids
// are input errors, rejected before any gateway call.
func resolveTargets(members []types.Participant, targetIDs []string) ([]string, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}
	byID := make(map[string]types.Participant, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	names := make([]string, 0, len(targetIDs))
	for _, id := range targetIDs {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("target %s is not a group member: %w", id, types.ErrNotFound)
		}
		names = append(names, m.Name)
	}
	return names, nil
}
