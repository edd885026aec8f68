package types

import (
	"context"
	"errors"
)

// Sentinel errors shared across packages.
var (
	// ErrNotFound is returned by repositories when an id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrBusy is returned when a delivery or compaction run is already in
	// flight for the conversation. Callers must not queue behind it.
	ErrBusy = errors.New("conversation busy")
	// ErrNoMembers is returned when a group reply is requested for a
	// conversation with no resolvable members.
	ErrNoMembers = errors.New("no group members")
)

// LLMClient is the completion gateway: given an ordered list of role-tagged
// blocks, it returns a single text completion. Implementations wrap failures
// in *GatewayError; no retry happens below this interface.
type LLMClient interface {
	Generate(ctx context.Context, messages []ChatMessage, opts GenerationOptions) (string, error)
}

// Repository is the persistence collaborator. The orchestrator treats it as
// synchronous for ordering purposes; implementations may be backed by an
// async boundary as long as each call is atomic.
type Repository interface {
	// Participants
	AddParticipant(ctx context.Context, p Participant) error
	GetParticipant(ctx context.Context, id string) (Participant, error)
	ListParticipants(ctx context.Context) ([]Participant, error)
	UpdateParticipant(ctx context.Context, p Participant) error
	DeleteParticipant(ctx context.Context, id string) error

	// Conversations and membership
	AddConversation(ctx context.Context, c Conversation) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	TouchConversation(ctx context.Context, id string) error
	AddMember(ctx context.Context, conversationID, participantID string) error
	ListMembers(ctx context.Context, conversationID string) ([]Participant, error)

	// Messages (append-only from the orchestrator's perspective)
	AppendMessage(ctx context.Context, m Message) error
	GetMessage(ctx context.Context, id string) (Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// Relationship facts
	AddFact(ctx context.Context, f RelationshipFact) error
	ListFacts(ctx context.Context) ([]RelationshipFact, error)
	DeleteFact(ctx context.Context, id string) error

	// Memory digest: replaced wholesale, never merged by the store.
	SetDigest(ctx context.Context, d MemoryDigest) error
	GetDigest(ctx context.Context, conversationID string) (MemoryDigest, error)

	// Lorebook and style presets
	PutLorebookEntry(ctx context.Context, e LorebookEntry) error
	ListLorebook(ctx context.Context) ([]LorebookEntry, error)
	ListStylePresets(ctx context.Context) ([]StylePreset, error)
	PutStylePreset(ctx context.Context, p StylePreset) error
}
