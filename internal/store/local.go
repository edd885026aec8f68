// Package store implements the persistence collaborator over SQLite.
// It is the only component that touches the database; the orchestrator and
// its stages see it through the types.Repository interface.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// LocalStore implements types.Repository using SQLite.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
// Pass ":memory:" for an ephemeral store (tests, seed dry-runs).
func NewLocalStore(path string) (*LocalStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The sqlite driver serializes writes; a single connection avoids
	// table-lock errors under concurrent readers.
	db.SetMaxOpenConns(1)

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	participantsTable := `
	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gender TEXT DEFAULT '',
		personality TEXT DEFAULT '',
		relationship TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_participants_name ON participants(name);
	`

	conversationsTable := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'group',
		self_name TEXT DEFAULT '',
		time_override TEXT DEFAULT '',
		last_active_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	membersTable := `
	CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		PRIMARY KEY (conversation_id, participant_id)
	);
	CREATE INDEX IF NOT EXISTS idx_members_conversation ON conversation_members(conversation_id);
	`

	messagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		author_name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		content TEXT DEFAULT '',
		payload TEXT DEFAULT '{}',
		reply_to_id TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
	`

	factsTable := `
	CREATE TABLE IF NOT EXISTS relationship_facts (
		id TEXT PRIMARY KEY,
		a_id TEXT NOT NULL,
		b_id TEXT NOT NULL,
		label TEXT NOT NULL,
		backstory TEXT DEFAULT ''
	);
	`

	digestsTable := `
	CREATE TABLE IF NOT EXISTS memory_digests (
		conversation_id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	lorebookTable := `
	CREATE TABLE IF NOT EXISTS lorebook (
		id TEXT PRIMARY KEY,
		keyword TEXT NOT NULL,
		content TEXT NOT NULL,
		enabled INTEGER DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_lorebook_keyword ON lorebook(keyword);
	`

	presetsTable := `
	CREATE TABLE IF NOT EXISTS style_presets (
		name TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		enabled INTEGER DEFAULT 1
	);
	`

	seqTrigger := `
	CREATE TRIGGER IF NOT EXISTS messages_seq AFTER INSERT ON messages
	WHEN NEW.seq IS NULL
	BEGIN
		UPDATE messages SET seq = (SELECT IFNULL(MAX(seq), 0) + 1 FROM messages)
		WHERE id = NEW.id;
	END;
	`

	for _, table := range []string{
		participantsTable, conversationsTable, membersTable, messagesTable,
		factsTable, digestsTable, lorebookTable, presetsTable, seqTrigger,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// Upgrade databases created before a column existed.
	return runMigrations(s.db)
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *LocalStore) Path() string {
	return s.dbPath
}
