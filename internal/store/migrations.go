package store

import (
	"database/sql"
	"fmt"

	"driftwatch/internal/logging"
)

// Schema versions:
// v1: generated_files and resolutions tables
// v2: generated_files.accepted_at for baselines accepted from user edits
// v3: resolutions.discarded for outcomes that raced a re-detection
const CurrentSchemaVersion = 3

// Migration adds one column to an existing table.
type Migration struct {
	Version int
	Table   string
	Column  string
	Def     string
}

// pendingMigrations upgrade databases created by older releases. Fresh
// databases get the v1 tables from initialize and then run these too.
var pendingMigrations = []Migration{
	{2, "generated_files", "accepted_at", "TEXT"},
	{3, "resolutions", "discarded", "INTEGER NOT NULL DEFAULT 0"},
}

// RunMigrations applies schema migrations and records the resulting version.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	from := GetSchemaVersion(db)
	if from >= CurrentSchemaVersion {
		logging.StoreDebug("Schema is current (v%d)", from)
		return nil
	}

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			return fmt.Errorf("migration v%d: table %s missing", m.Version, m.Table)
		}
		if columnExists(db, m.Table, m.Column) {
			logging.StoreDebug("Column already exists, skipping: %s.%s", m.Table, m.Column)
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		logging.StoreDebug("Executing migration: %s", query)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration v%d (%s.%s): %w", m.Version, m.Table, m.Column, err)
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	if err := SetSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return err
	}
	logging.Store("Schema migrated v%d -> v%d (%d columns added)", from, CurrentSchemaVersion, applied)
	return nil
}

// GetSchemaVersion returns the recorded schema version, inferring it from
// the table structure when nothing was recorded.
func GetSchemaVersion(db *sql.DB) int {
	if tableExists(db, "schema_versions") {
		var version sql.NullInt64
		if err := db.QueryRow("SELECT MAX(version) FROM schema_versions").Scan(&version); err == nil && version.Valid {
			return int(version.Int64)
		}
	}
	return inferSchemaVersion(db)
}

func inferSchemaVersion(db *sql.DB) int {
	switch {
	case !tableExists(db, "generated_files"):
		return 0
	case columnExists(db, "resolutions", "discarded"):
		return 3
	case columnExists(db, "generated_files", "accepted_at"):
		return 2
	default:
		return 1
	}
}

// SetSchemaVersion records a new schema version in the database.
func SetSchemaVersion(db *sql.DB, version int) error {
	createTable := `
		CREATE TABLE IF NOT EXISTS schema_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			description TEXT
		)
	`
	if _, err := db.Exec(createTable); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create schema_versions table: %v", err)
		return fmt.Errorf("failed to create schema_versions table: %w", err)
	}

	desc := fmt.Sprintf("Migrated to schema version %d", version)
	if _, err := db.Exec("INSERT INTO schema_versions (version, description) VALUES (?, ?)", version, desc); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to record schema version %d: %v", version, err)
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
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
