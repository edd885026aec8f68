package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"chatstage/internal/logging"
	"chatstage/internal/types"
)

// AppendMessage persists one message at the end of its conversation's
// timeline. Insert order is the timeline order; timestamps from a simulated
// clock are allowed to collide.
func (s *LocalStore) AppendMessage(ctx context.Context, m types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Appending message: conversation=%s author=%s kind=%s len=%d",
		m.ConversationID, m.AuthorName, m.Kind, len(m.Content))

	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, author_name, kind, content, payload, reply_to_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.AuthorID, m.AuthorName, string(m.Kind),
		m.Content, string(payload), m.ReplyToID, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message %s: %w", m.ID, err)
	}
	return nil
}

// GetMessage retrieves one message by id.
func (s *LocalStore) GetMessage(ctx context.Context, id string) (types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, author_id, author_name, kind, content, payload, reply_to_id, created_at
		 FROM messages WHERE id = ?`, id)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return types.Message{}, types.ErrNotFound
	}
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return m, nil
}

// ListMessages returns the last limit messages of a conversation in
// chronological order. limit <= 0 returns the full history.
func (s *LocalStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, conversation_id, author_id, author_name, kind, content, payload, reply_to_id, created_at
		 FROM (
			SELECT * FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of %s: %w", conversationID, err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(r rowScanner) (types.Message, error) {
	var m types.Message
	var kind, payload string
	err := r.Scan(&m.ID, &m.ConversationID, &m.AuthorID, &m.AuthorName,
		&kind, &m.Content, &payload, &m.ReplyToID, &m.CreatedAt)
	if err != nil {
		return types.Message{}, err
	}
	m.Kind = types.MessageKind(kind)
	if payload != "" && payload != "{}" && payload != "null" {
		if err := json.Unmarshal([]byte(payload), &m.Payload); err != nil {
			return types.Message{}, fmt.Errorf("failed to decode payload of %s: %w", m.ID, err)
		}
	}
	return m, nil
}
