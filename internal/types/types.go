// Package types provides shared type definitions used across chatstage packages.
// This package exists to break import cycles between the orchestrator, the
// store, and the core pipeline stages. Types here are foundational data
// structures with no complex dependencies.
package types

import (
	"fmt"
	"time"
)

// SelfID is the reserved participant id for the user's own persona.
// Messages authored by self count as one "round" for memory compaction.
const SelfID = "self"

// MessageKind classifies the payload of a message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindSticker  MessageKind = "sticker"
	KindLocation MessageKind = "location"
	KindTransfer MessageKind = "transfer"
	KindGame     MessageKind = "game"
)

// ConversationKind distinguishes one-on-one chats from group chats.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Participant is a named entity (user persona or simulated character) that
// can author messages. Name is the join key used to resolve spoken lines in
// a parsed completion back to an id, so it must be unique within a group.
type Participant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Gender       string    `json:"gender"`
	Personality  string    `json:"personality"`
	Relationship string    `json:"relationship"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is a single entry on a conversation timeline. The orchestrator
// only ever appends messages; it never edits or deletes them.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	AuthorID       string            `json:"author_id"`
	AuthorName     string            `json:"author_name"`
	Kind           MessageKind       `json:"kind"`
	Content        string            `json:"content"`
	Payload        map[string]string `json:"payload,omitempty"`
	ReplyToID      string            `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// IsSelf reports whether the message was authored by the user persona.
func (m Message) IsSelf() bool {
	return m.AuthorID == SelfID
}

// Conversation is a direct or group chat. SelfName is the display name the
// user persona goes by inside this conversation. TimeOverride, when set,
// replaces wall-clock time in assembled context (time-sync disabled).
type Conversation struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Kind         ConversationKind `json:"kind"`
	SelfName     string           `json:"self_name"`
	TimeOverride string           `json:"time_override,omitempty"`
	LastActiveAt time.Time        `json:"last_active_at"`
}

// RelationshipFact links an unordered pair of participant ids (either may be
// SelfID) with a short label and optional backstory. Facts are included
// verbatim in assembled context; no inference or transitivity is computed.
type RelationshipFact struct {
	ID        string `json:"id"`
	AID       string `json:"a_id"`
	BID       string `json:"b_id"`
	Label     string `json:"label"`
	Backstory string `json:"backstory,omitempty"`
}

// MemoryDigest is the compacted long-term memory for one conversation.
// It is replaced wholesale on each compaction, never merged locally.
type MemoryDigest struct {
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LorebookEntry is a keyword-triggered world snippet. An entry is injected
// into context when its keyword appears in the recent message window.
type LorebookEntry struct {
	ID      string `json:"id"`
	Keyword string `json:"keyword"`
	Content string `json:"content"`
	Enabled bool   `json:"enabled"`
}

// StylePreset is a global system-level style instruction applied to every
// generation request.
type StylePreset struct {
	Name    string `json:"name"`
	Prompt  string `json:"prompt"`
	Enabled bool   `json:"enabled"`
}

// ChatMessage is one role-tagged block of a transient generation request.
// Requests are built fresh per call and never persisted.
type ChatMessage struct {
	Role string `json:"role"` // "system" or "user"
	Text string `json:"text"`
}

// GenerationOptions bound a single gateway call.
type GenerationOptions struct {
	MaxOutputTokens int
	Timeout         time.Duration
}

// Utterance is one parsed (speaker, content) pair from a multi-speaker
// completion, in completion order.
type Utterance struct {
	SpeakerName string
	Content     string
}

// RenderMarker returns the bracketed placeholder used when a non-text
// message is rendered into prompt history.
func RenderMarker(m Message) string {
	switch m.Kind {
	case KindText:
		return m.Content
	case KindImage:
		return "<image>"
	case KindSticker:
		return "<sticker " + m.Content + ">"
	case KindLocation:
		return "<location " + m.Payload["place"] + ">"
	case KindTransfer:
		return fmt.Sprintf("<transfer %s>", m.Payload["amount"])
	case KindGame:
		return fmt.Sprintf("<game %s: %s>", m.Payload["game"], m.Payload["result"])
	default:
		return "<" + string(m.Kind) + ">"
	}
}
