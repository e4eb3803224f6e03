package store

import (
	"database/sql"
	"fmt"

	"conductor/internal/logging"
)

// Schema versions:
// v1: base columns (ids, routing, tool, status, error_code, timing)
// v2: added scenario_id, assembly and context_hash for lineage
// v3: added block_count and coalesced
const CurrentSchemaVersion = 3

// Migration adds one column to an existing table.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations upgrade trace databases created by older builds. Tables
// created fresh already carry every column.
var pendingMigrations = []Migration{
	// v2: lineage
	{"turn_traces", "scenario_id", "TEXT"},
	{"turn_traces", "assembly", "TEXT"},
	{"turn_traces", "context_hash", "TEXT"},
	// v3: envelope shape and coalescing
	{"turn_traces", "block_count", "INTEGER NOT NULL DEFAULT 0"},
	{"turn_traces", "coalesced", "INTEGER NOT NULL DEFAULT 0"},
}

// RunMigrations applies the column migrations that db is missing.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			logging.StoreDebug("Table missing, skipping migration: %s.%s", m.Table, m.Column)
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		logging.StoreDebug("Executing migration: %s", query)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	if applied > 0 {
		logging.Store("Schema migrations complete: applied=%d", applied)
	}
	return nil
}

// SchemaVersion infers the trace schema version from the table structure.
// It returns 0 when there is no trace table.
func SchemaVersion(db *sql.DB) int {
	switch {
	case !tableExists(db, "turn_traces"):
		return 0
	case columnExists(db, "turn_traces", "coalesced"):
		return 3
	case columnExists(db, "turn_traces", "context_hash"):
		return 2
	default:
		return 1
	}
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks if a table exists in the database.
func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		logging.StoreDebug("Table existence check failed for %s: %v", table, err)
		return false
	}
	return count > 0
}
