package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatstage/internal/logging"
	"chatstage/internal/types"
)

// SetDigest replaces the memory digest for a conversation in a single write.
// The store never merges old and new content; the compaction prompt does.
func (s *LocalStore) SetDigest(ctx context.Context, d types.MemoryDigest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Replacing digest: conversation=%s len=%d", d.ConversationID, len(d.Content))

	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_digests (conversation_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		d.ConversationID, d.Content, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set digest for %s: %w", d.ConversationID, err)
	}
	return nil
}

// GetDigest retrieves the digest of a conversation.
// Returns types.ErrNotFound when no compaction has run yet.
func (s *LocalStore) GetDigest(ctx context.Context, conversationID string) (types.MemoryDigest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, content, updated_at FROM memory_digests WHERE conversation_id = ?`,
		conversationID)

	var d types.MemoryDigest
	err := row.Scan(&d.ConversationID, &d.Content, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return types.MemoryDigest{}, types.ErrNotFound
	}
	if err != nil {
		return types.MemoryDigest{}, fmt.Errorf("failed to get digest for %s: %w", conversationID, err)
	}
	return d, nil
}
