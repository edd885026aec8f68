// Package lorebook loads keyword-triggered world entries and style presets
// from a YAML file and keeps the store in sync with it, optionally watching
// the file for edits.
package lorebook

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"chatstage/internal/types"
)

// File is the on-disk lorebook format.
type File struct {
	Styles  []StyleEntry `yaml:"styles"`
	Entries []WorldEntry `yaml:"entries"`
}

// StyleEntry is one global style preset in the YAML file.
type StyleEntry struct {
	Name    string `yaml:"name"`
	Prompt  string `yaml:"prompt"`
	Enabled *bool  `yaml:"enabled"` // nil means enabled
}

// WorldEntry is one keyword-triggered snippet in the YAML file. ID is
// optional; when blank a stable id is derived from the keyword so re-imports
// update in place instead of duplicating.
type WorldEntry struct {
	ID      string `yaml:"id"`
	Keyword string `yaml:"keyword"`
	Content string `yaml:"content"`
	Enabled *bool  `yaml:"enabled"`
}

// Load reads and validates a lorebook file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lorebook %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse lorebook %s: %w", path, err)
	}
	for i, e := range f.Entries {
		if strings.TrimSpace(e.Keyword) == "" {
			return nil, fmt.Errorf("lorebook %s: entry %d has no keyword", path, i)
		}
	}
	for i, s := range f.Styles {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("lorebook %s: style %d has no name", path, i)
		}
	}
	return &f, nil
}

// LorebookStore is the slice of the repository the importer writes through.
type LorebookStore interface {
	PutLorebookEntry(ctx context.Context, e types.LorebookEntry) error
	PutStylePreset(ctx context.Context, p types.StylePreset) error
}

// Sync upserts every style and entry from the file into the store. Entries
// removed from the file are left in the store; disable them there instead.
func Sync(ctx context.Context, repo LorebookStore, f *File) error {
	for _, s := range f.Styles {
		if err := repo.PutStylePreset(ctx, types.StylePreset{
			Name:    s.Name,
			Prompt:  s.Prompt,
			Enabled: enabled(s.Enabled),
		}); err != nil {
			return err
		}
	}
	for _, e := range f.Entries {
		id := e.ID
		if id == "" {
			id = "kw:" + e.Keyword
		}
		if err := repo.PutLorebookEntry(ctx, types.LorebookEntry{
			ID:      id,
			Keyword: e.Keyword,
			Content: e.Content,
			Enabled: enabled(e.Enabled),
		}); err != nil {
			return err
		}
	}
	return nil
}

// Import loads path and syncs it in one step.
func Import(ctx context.Context, repo LorebookStore, path string) (*File, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := Sync(ctx, repo, f); err != nil {
		return nil, err
	}
	return f, nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}
