package store

import (
	"context"
	"fmt"

	"chatstage/internal/types"
)

// PutLorebookEntry inserts or replaces a lorebook entry.
func (s *LocalStore) PutLorebookEntry(ctx context.Context, e types.LorebookEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lorebook (id, keyword, content, enabled) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET keyword = excluded.keyword, content = excluded.content, enabled = excluded.enabled`,
		e.ID, e.Keyword, e.Content, boolToInt(e.Enabled),
	)
	if err != nil {
		return fmt.Errorf("failed to put lorebook entry %s: %w", e.ID, err)
	}
	return nil
}

// ListLorebook returns all lorebook entries, enabled or not.
func (s *LocalStore) ListLorebook(ctx context.Context) ([]types.LorebookEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, keyword, content, enabled FROM lorebook ORDER BY keyword`)
	if err != nil {
		return nil, fmt.Errorf("failed to list lorebook: %w", err)
	}
	defer rows.Close()

	var out []types.LorebookEntry
	for rows.Next() {
		var e types.LorebookEntry
		var enabled int
		if err := rows.Scan(&e.ID, &e.Keyword, &e.Content, &enabled); err != nil {
			return nil, err
		}
		e.Enabled = enabled != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutStylePreset inserts or replaces a style preset.
func (s *LocalStore) PutStylePreset(ctx context.Context, p types.StylePreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO style_presets (name, prompt, enabled) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET prompt = excluded.prompt, enabled = excluded.enabled`,
		p.Name, p.Prompt, boolToInt(p.Enabled),
	)
	if err != nil {
		return fmt.Errorf("failed to put style preset %s: %w", p.Name, err)
	}
	return nil
}

// ListStylePresets returns all style presets.
func (s *LocalStore) ListStylePresets(ctx context.Context) ([]types.StylePreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name, prompt, enabled FROM style_presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list style presets: %w", err)
	}
	defer rows.Close()

	var out []types.StylePreset
	for rows.Next() {
		var p types.StylePreset
		var enabled int
		if err := rows.Scan(&p.Name, &p.Prompt, &enabled); err != nil {
			return nil, err
		}
		p.Enabled = enabled != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
