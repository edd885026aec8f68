package store

import (
	"context"
	"fmt"

	"chatstage/internal/types"
)

// AddFact inserts a relationship fact. The pair is stored as given;
// lookups treat it as unordered.
func (s *LocalStore) AddFact(ctx context.Context, f types.RelationshipFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relationship_facts (id, a_id, b_id, label, backstory) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.AID, f.BID, f.Label, f.Backstory,
	)
	if err != nil {
		return fmt.Errorf("failed to add fact %s: %w", f.ID, err)
	}
	return nil
}

// ListFacts returns all relationship facts.
func (s *LocalStore) ListFacts(ctx context.Context) ([]types.RelationshipFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, a_id, b_id, label, backstory FROM relationship_facts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	var out []types.RelationshipFact
	for rows.Next() {
		var f types.RelationshipFact
		if err := rows.Scan(&f.ID, &f.AID, &f.BID, &f.Label, &f.Backstory); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFact removes a relationship fact by id.
func (s *LocalStore) DeleteFact(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM relationship_facts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrNotFound
	}
	return nil
}
