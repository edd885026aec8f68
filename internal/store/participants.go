package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatstage/internal/logging"
	"chatstage/internal/types"
)

// AddParticipant inserts a participant profile.
func (s *LocalStore) AddParticipant(ctx context.Context, p types.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Adding participant: id=%s name=%s", p.ID, p.Name)

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, name, gender, personality, relationship, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Gender, p.Personality, p.Relationship, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add participant %s: %w", p.ID, err)
	}
	return nil
}

// GetParticipant retrieves one participant by id.
func (s *LocalStore) GetParticipant(ctx context.Context, id string) (types.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, gender, personality, relationship, created_at
		 FROM participants WHERE id = ?`, id)

	var p types.Participant
	err := row.Scan(&p.ID, &p.Name, &p.Gender, &p.Personality, &p.Relationship, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return types.Participant{}, types.ErrNotFound
	}
	if err != nil {
		return types.Participant{}, fmt.Errorf("failed to get participant %s: %w", id, err)
	}
	return p, nil
}

// ListParticipants returns all participants ordered by creation time.
func (s *LocalStore) ListParticipants(ctx context.Context) ([]types.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, gender, personality, relationship, created_at
		 FROM participants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
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

// UpdateParticipant overwrites a participant profile.
func (s *LocalStore) UpdateParticipant(ctx context.Context, p types.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE participants SET name = ?, gender = ?, personality = ?, relationship = ?
		 WHERE id = ?`,
		p.Name, p.Gender, p.Personality, p.Relationship, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// DeleteParticipant removes a participant and its group memberships.
func (s *LocalStore) DeleteParticipant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_members WHERE participant_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return nil
}
