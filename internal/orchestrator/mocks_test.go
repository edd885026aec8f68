package orchestrator

import (
	"context"
	"sync"
	"time"

	"chatstage/internal/types"
)

// --- MockLLMClient ---

type MockLLMClient struct {
	mu           sync.Mutex
	GenerateFunc func(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error)
	calls        int
}

func (m *MockLLMClient) Generate(ctx context.Context, messages []types.ChatMessage, opts types.GenerationOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages, opts)
	}
	return "", nil
}

func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- memRepo: in-memory types.Repository ---

type memRepo struct {
	mu            sync.Mutex
	participants  map[string]types.Participant
	conversations map[string]types.Conversation
	members       map[string][]string
	messages      map[string][]types.Message
	facts         []types.RelationshipFact
	digests       map[string]types.MemoryDigest
	lorebook      []types.LorebookEntry
	presets       []types.StylePreset
}

func newMemRepo() *memRepo {
	return &memRepo{
		participants:  make(map[string]types.Participant),
		conversations: make(map[string]types.Conversation),
		members:       make(map[string][]string),
		messages:      make(map[string][]types.Message),
		digests:       make(map[string]types.MemoryDigest),
	}
}

func (r *memRepo) AddParticipant(ctx context.Context, p types.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
	return nil
}

func (r *memRepo) GetParticipant(ctx context.Context, id string) (types.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return types.Participant{}, types.ErrNotFound
	}
	return p, nil
}

func (r *memRepo) ListParticipants(ctx context.Context) ([]types.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Participant
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out, nil
}

func (r *memRepo) UpdateParticipant(ctx context.Context, p types.Participant) error {
	return r.AddParticipant(ctx, p)
}

func (r *memRepo) DeleteParticipant(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
	return nil
}

func (r *memRepo) AddConversation(ctx context.Context, c types.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[c.ID] = c
	return nil
}

func (r *memRepo) GetConversation(ctx context.Context, id string) (types.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return types.Conversation{}, types.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Conversation
	for _, c := range r.conversations {
		out = append(out, c)
	}
	return out, nil
}

func (r *memRepo) TouchConversation(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return types.ErrNotFound
	}
	c.LastActiveAt = time.Now()
	r.conversations[id] = c
	return nil
}

func (r *memRepo) AddMember(ctx context.Context, conversationID, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[conversationID] = append(r.members[conversationID], participantID)
	return nil
}

func (r *memRepo) ListMembers(ctx context.Context, conversationID string) ([]types.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Participant
	for _, id := range r.members[conversationID] {
		if p, ok := r.participants[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) AppendMessage(ctx context.Context, m types.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.ConversationID] = append(r.messages[m.ConversationID], m)
	return nil
}

func (r *memRepo) GetMessage(ctx context.Context, id string) (types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msgs := range r.messages {
		for _, m := range msgs {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return types.Message{}, types.ErrNotFound
}

func (r *memRepo) ListMessages(ctx context.Context, conversationID string, limit int) ([]types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *memRepo) Messages(conversationID string) []types.Message {
	out, _ := r.ListMessages(context.Background(), conversationID, 0)
	return out
}

func (r *memRepo) AddFact(ctx context.Context, f types.RelationshipFact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts = append(r.facts, f)
	return nil
}

func (r *memRepo) ListFacts(ctx context.Context) ([]types.RelationshipFact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.RelationshipFact, len(r.facts))
	copy(out, r.facts)
	return out, nil
}

func (r *memRepo) DeleteFact(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.facts {
		if f.ID == id {
			r.facts = append(r.facts[:i], r.facts[i+1:]...)
			return nil
		}
	}
	return types.ErrNotFound
}

func (r *memRepo) SetDigest(ctx context.Context, d types.MemoryDigest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests[d.ConversationID] = d
	return nil
}

func (r *memRepo) GetDigest(ctx context.Context, conversationID string) (types.MemoryDigest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.digests[conversationID]
	if !ok {
		return types.MemoryDigest{}, types.ErrNotFound
	}
	return d, nil
}

func (r *memRepo) PutLorebookEntry(ctx context.Context, e types.LorebookEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lorebook = append(r.lorebook, e)
	return nil
}

func (r *memRepo) ListLorebook(ctx context.Context) ([]types.LorebookEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.LorebookEntry, len(r.lorebook))
	copy(out, r.lorebook)
	return out, nil
}

func (r *memRepo) PutStylePreset(ctx context.Context, p types.StylePreset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets = append(r.presets, p)
	return nil
}

func (r *memRepo) ListStylePresets(ctx context.Context) ([]types.StylePreset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.StylePreset, len(r.presets))
	copy(out, r.presets)
	return out, nil
}
