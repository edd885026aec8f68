package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatstage/internal/logging"
	"chatstage/internal/types"
)

// AddConversation inserts a conversation.
func (s *LocalStore) AddConversation(ctx context.Context, c types.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Adding conversation: id=%s name=%s kind=%s", c.ID, c.Name, c.Kind)

	lastActive := c.LastActiveAt
	if lastActive.IsZero() {
		lastActive = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, name, kind, self_name, time_override, last_active_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, string(c.Kind), c.SelfName, c.TimeOverride, lastActive,
	)
	if err != nil {
		return fmt.Errorf("failed to add conversation %s: %w", c.ID, err)
	}
	return nil
}

// GetConversation retrieves one conversation by id.
func (s *LocalStore) GetConversation(ctx context.Context, id string) (types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, self_name, time_override, last_active_at
		 FROM conversations WHERE id = ?`, id)

	var c types.Conversation
	var kind string
	err := row.Scan(&c.ID, &c.Name, &kind, &c.SelfName, &c.TimeOverride, &c.LastActiveAt)
	if err == sql.ErrNoRows {
		return types.Conversation{}, types.ErrNotFound
	}
	if err != nil {
		return types.Conversation{}, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	c.Kind = types.ConversationKind(kind)
	return c, nil
}

// ListConversations returns all conversations, most recently active first.
func (s *LocalStore) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, self_name, time_override, last_active_at
		 FROM conversations ORDER BY last_active_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []types.Conversation
	for rows.Next() {
		var c types.Conversation
		var kind string
		if err := rows.Scan(&c.ID, &c.Name, &kind, &c.SelfName, &c.TimeOverride, &c.LastActiveAt); err != nil {
			return nil, err
		}
		c.Kind = types.ConversationKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

// TouchConversation bumps the last-activity timestamp.
func (s *LocalStore) TouchConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_active_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// AddMember links a participant into a conversation. Idempotent.
func (s *LocalStore) AddMember(ctx context.Context, conversationID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversation_members (conversation_id, participant_id) VALUES (?, ?)`,
		conversationID, participantID,
	)
	return err
}

// ListMembers returns the participants of a conversation.
func (s *LocalStore) ListMembers(ctx context.Context, conversationID string) ([]types.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.gender, p.personality, p.relationship, p.created_at
		 FROM participants p
		 JOIN conversation_members m ON m.participant_id = p.id
		 WHERE m.conversation_id = ?
		 ORDER BY p.created_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", conversationID, err)
	}
	defer rows.Close()

	var out []types.Participant
	for rows.Next() {
		var p types.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Gender, &p.Personality, &p.Relationship, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
