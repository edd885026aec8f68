// Package assembler builds the full instruction/context payload for one
// generation request. It is a pure function of its inputs: no store reads,
// no clock reads (the caller passes the time), no network.
//
// Section order is significant. The underlying models weight later text as
// more authoritative, so static profile data comes first and volatile
// content (current time, recent turns, long-term memory, the reply
// instruction) comes last.
package assembler

import (
	"fmt"
	"strings"

	"chatstage/internal/types"
)

// Options tune window sizes. Zero values fall back to defaults.
type Options struct {
	// HistoryWindow is the number of recent messages rendered.
	HistoryWindow int
	// LorebookScanWindow is how many recent messages are scanned for
	// lorebook keyword triggers.
	LorebookScanWindow int
	// ReplyPreviewRunes truncates quoted reply-to content.
	ReplyPreviewRunes int
}

const (
	defaultHistoryWindow      = 60
	defaultLorebookScanWindow = 10
	defaultReplyPreviewRunes  = 50
)

// BuildInput carries everything one generation request needs. History must
// be in chronological order; the assembler applies the window itself.
type BuildInput struct {
	Conversation types.Conversation
	Members      []types.Participant
	Presets      []types.StylePreset
	Lorebook     []types.LorebookEntry
	Facts        []types.RelationshipFact
	History      []types.Message
	Digest       string
	// Now is the current time already rendered as a string. When the
	// conversation carries a TimeOverride it wins over Now.
	Now string
	// TargetNames, when non-empty, restricts which members are asked to
	// speak this turn.
	TargetNames []string
}

// Build assembles the generation request blocks: one system block of static
// setup and one user block of volatile context ending with the reply
// instruction.
func Build(in BuildInput, opts Options) []types.ChatMessage {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultHistoryWindow
	}
	if opts.LorebookScanWindow <= 0 {
		opts.LorebookScanWindow = defaultLorebookScanWindow
	}
	if opts.ReplyPreviewRunes <= 0 {
		opts.ReplyPreviewRunes = defaultReplyPreviewRunes
	}

	var system strings.Builder

	writeSection(&system, "Style", renderPresets(in.Presets))
	writeSection(&system, "Characters", renderProfiles(in.Members))
	writeSection(&system, "World notes", renderLorebook(in.Lorebook, in.History, opts.LorebookScanWindow))
	writeSection(&system, "Relationships", renderFacts(in.Facts, in.Members, in.Conversation.SelfName))

	var user strings.Builder

	writeSection(&user, "Conversation", renderMetadata(in.Conversation, in.Members))
	if now := currentTime(in); now != "" {
		writeSection(&user, "Current time", now)
	}
	writeSection(&user, "Recent messages", renderHistory(in.History, opts))
	if in.Digest != "" {
		writeSection(&user, "Long-term memory (must read)", in.Digest)
	}
	writeSection(&user, "Task", renderInstruction(in))

	return []types.ChatMessage{
		{Role: "system", Text: strings.TrimSpace(system.String())},
		{Role: "user", Text: strings.TrimSpace(user.String())},
	}
}

func writeSection(sb *strings.Builder, heading, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(sb, "## %s\n%s\n\n", heading, body)
}

func renderPresets(presets []types.StylePreset) string {
	var lines []string
	for _, p := range presets {
		if p.Enabled {
			lines = append(lines, p.Prompt)
		}
	}
	return strings.Join(lines, "\n")
}

func renderProfiles(members []types.Participant) string {
	var lines []string
	for _, m := range members {
		var b strings.Builder
		fmt.Fprintf(&b, "- %s", m.Name)
		if m.Gender != "" {
			fmt.Fprintf(&b, " (%s)", m.Gender)
		}
		if m.Relationship != "" {
			fmt.Fprintf(&b, ", %s", m.Relationship)
		}
		if m.Personality != "" {
			fmt.Fprintf(&b, ": %s", m.Personality)
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// renderLorebook includes entries whose keyword appears in the scan window
// of recent messages.
func renderLorebook(entries []types.LorebookEntry, history []types.Message, scanWindow int) string {
	if len(entries) == 0 || len(history) == 0 {
		return ""
	}

	start := len(history) - scanWindow
	if start < 0 {
		start = 0
	}
	var recent strings.Builder
	for _, m := range history[start:] {
		recent.WriteString(m.Content)
		recent.WriteString("\n")
	}
	haystack := recent.String()

	var lines []string
	for _, e := range entries {
		if !e.Enabled || e.Keyword == "" {
			continue
		}
		if strings.Contains(haystack, e.Keyword) {
			lines = append(lines, "- "+e.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// renderFacts includes every fact verbatim; no filtering or inference.
func renderFacts(facts []types.RelationshipFact, members []types.Participant, selfName string) string {
	names := make(map[string]string, len(members)+1)
	for _, m := range members {
		names[m.ID] = m.Name
	}
	if selfName != "" {
		names[types.SelfID] = selfName
	}

	displayName := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	var lines []string
	for _, f := range facts {
		line := fmt.Sprintf("- %s and %s: %s", displayName(f.AID), displayName(f.BID), f.Label)
		if f.Backstory != "" {
			line += " (" + f.Backstory + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderMetadata(c types.Conversation, members []types.Participant) string {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Group: %s\nMembers: %s", c.Name, strings.Join(names, ", "))
	if c.SelfName != "" {
		fmt.Fprintf(&b, "\nThe user goes by: %s", c.SelfName)
	}
	return b.String()
}

func currentTime(in BuildInput) string {
	if in.Conversation.TimeOverride != "" {
		return in.Conversation.TimeOverride
	}
	return in.Now
}

// renderHistory renders the last HistoryWindow messages, one per line.
// Zero history renders an explicit placeholder so the block stays
// well-formed for the model.
func renderHistory(history []types.Message, opts Options) string {
	if len(history) == 0 {
		return "(no messages yet)"
	}

	start := len(history) - opts.HistoryWindow
	if start < 0 {
		start = 0
	}
	window := history[start:]

	byID := make(map[string]types.Message, len(history))
	for _, m := range history {
		byID[m.ID] = m
	}

	var lines []string
	for _, m := range window {
		var b strings.Builder
		fmt.Fprintf(&b, "%s: ", m.AuthorName)
		if m.ReplyToID != "" {
			if ref, ok := byID[m.ReplyToID]; ok {
				fmt.Fprintf(&b, "[re %s: %s] ", ref.AuthorName, truncateRunes(types.RenderMarker(ref), opts.ReplyPreviewRunes))
			}
		}
		b.WriteString(types.RenderMarker(m))
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func renderInstruction(in BuildInput) string {
	speakers := in.TargetNames
	if len(speakers) == 0 {
		for _, m := range in.Members {
			speakers = append(speakers, m.Name)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Continue the group chat as the characters (%s).\n", strings.Join(speakers, ", "))
	b.WriteString("Write one line per message in the form [Name]content. ")
	b.WriteString("Only speak for the listed characters, never for the user. ")
	b.WriteString("Stay in character and keep each message short, like a real chat.")
	return b.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
