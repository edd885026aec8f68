// Versioned column migrations for databases created by older builds.
// initialize() creates the full current schema; the migrations below exist
// for databases that predate a column and only ever add, never rewrite.
package store

import (
	"database/sql"
	"fmt"

	"chatstage/internal/logging"
)

type migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists columns added after the table first shipped.
var pendingMigrations = []migration{
	// Reply references landed after the base messages table.
	{"messages", "reply_to_id", "TEXT DEFAULT ''"},
	// Roleplay time override landed after the base conversations table.
	{"conversations", "time_override", "TEXT DEFAULT ''"},
}

// runMigrations applies pending column additions to an existing database.
func runMigrations(db *sql.DB) error {
	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.StoreDebug("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}
	if applied > 0 {
		logging.StoreDebug("Schema migrations complete: applied=%d", applied)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	return err == nil && count > 0
}
