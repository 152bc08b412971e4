package store

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (s *Store) initializeSchema() error {
	return s.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}

		if err := createFactTables(tx); err != nil {
			return err
		}
		if err := createModuleTables(tx); err != nil {
			return err
		}
		if err := createInteractionsTable(tx); err != nil {
			return err
		}
		if err := createFlowTables(tx); err != nil {
			return err
		}
		if err := createFeatureTables(tx); err != nil {
			return err
		}
		if err := createDomainsTable(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		s.logger.Info("database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations runs any pending schema migrations
func (s *Store) runMigrations() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		s.logger.Debug("database schema is up to date", "version", version)
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	s.logger.Info("running database migrations",
		"fromVersion", version, "toVersion", currentSchemaVersion)

	// Migrations run sequentially as the schema evolves.
	// if version < 2 { ... }

	return nil
}

// getSchemaVersion gets the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var tableName string
	err := s.queryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = s.queryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createSchemaVersionTable creates the schema_version tracking table
func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createFactTables creates the raw fact tables: files, definitions,
// definition_metadata, call_edges, and import_edges. Facts are written
// by ingestion and read by everything else.
func createFactTables(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			language TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("failed to create files table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS definitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			container TEXT NOT NULL DEFAULT '',
			start_line INTEGER NOT NULL DEFAULT 0,
			end_line INTEGER NOT NULL DEFAULT 0,
			signature TEXT NOT NULL DEFAULT '',
			exported INTEGER NOT NULL DEFAULT 0,

			FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
		)
	`); err != nil {
		return fmt.Errorf("failed to create definitions table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS definition_metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			definition_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,

			UNIQUE (definition_id, key),
			FOREIGN KEY (definition_id) REFERENCES definitions(id) ON DELETE CASCADE
		)
	`); err != nil {
		return fmt.Errorf("failed to create definition_metadata table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS call_edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_definition_id INTEGER NOT NULL,
			to_definition_id INTEGER NOT NULL,
			kind TEXT NOT NULL DEFAULT 'call',
			line INTEGER NOT NULL DEFAULT 0,

			UNIQUE (from_definition_id, to_definition_id, kind)
		)
	`); err != nil {
		return fmt.Errorf("failed to create call_edges table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS import_edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_file_id INTEGER NOT NULL,
			to_file_id INTEGER NOT NULL,

			UNIQUE (from_file_id, to_file_id)
		)
	`); err != nil {
		return fmt.Errorf("failed to create import_edges table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_definitions_file_id ON definitions(file_id)",
		"CREATE INDEX IF NOT EXISTS idx_definitions_name ON definitions(name)",
		"CREATE INDEX IF NOT EXISTS idx_metadata_definition_id ON definition_metadata(definition_id)",
		"CREATE INDEX IF NOT EXISTS idx_metadata_key ON definition_metadata(key)",
		"CREATE INDEX IF NOT EXISTS idx_call_edges_from ON call_edges(from_definition_id)",
		"CREATE INDEX IF NOT EXISTS idx_call_edges_to ON call_edges(to_definition_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createModuleTables creates the modules and module_members tables.
// The UNIQUE constraint on module_members.definition_id enforces that a
// definition belongs to at most one module.
func createModuleTables(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS modules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			parent_id INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			entity TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("failed to create modules table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS module_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			module_id INTEGER NOT NULL,
			definition_id INTEGER NOT NULL UNIQUE
		)
	`); err != nil {
		return fmt.Errorf("failed to create module_members table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_modules_parent_id ON modules(parent_id)",
		"CREATE INDEX IF NOT EXISTS idx_members_module_id ON module_members(module_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createInteractionsTable creates the interactions table. The UNIQUE
// constraint on the ordered module pair is what upsert relies on.
func createInteractionsTable(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_module_id INTEGER NOT NULL,
			to_module_id INTEGER NOT NULL,
			direction TEXT NOT NULL CHECK(direction IN ('uni', 'bi')),
			weight INTEGER NOT NULL DEFAULT 1,
			pattern TEXT NOT NULL DEFAULT 'business',
			semantic TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL CHECK(source IN ('ast', 'ast-import', 'llm-inferred', 'manual')),
			symbols_json TEXT NOT NULL DEFAULT '[]',

			UNIQUE (from_module_id, to_module_id)
		)
	`); err != nil {
		return fmt.Errorf("failed to create interactions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_interactions_from ON interactions(from_module_id)",
		"CREATE INDEX IF NOT EXISTS idx_interactions_to ON interactions(to_module_id)",
		"CREATE INDEX IF NOT EXISTS idx_interactions_source ON interactions(source)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createFlowTables creates the flows and flow_steps tables.
func createFlowTables(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS flows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			parent_id INTEGER NOT NULL DEFAULT 0,
			depth INTEGER NOT NULL DEFAULT 0,
			domain TEXT NOT NULL DEFAULT '',
			stakeholder TEXT NOT NULL DEFAULT 'user',
			entry_definition_id INTEGER NOT NULL DEFAULT 0,
			entry_module_id INTEGER NOT NULL DEFAULT 0,
			tier INTEGER NOT NULL DEFAULT 0 CHECK(tier IN (0, 1, 2))
		)
	`); err != nil {
		return fmt.Errorf("failed to create flows table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS flow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flow_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			interaction_id INTEGER NOT NULL,
			from_definition_id INTEGER NOT NULL DEFAULT 0,
			to_definition_id INTEGER NOT NULL DEFAULT 0,

			UNIQUE (flow_id, seq)
		)
	`); err != nil {
		return fmt.Errorf("failed to create flow_steps table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_flows_parent_id ON flows(parent_id)",
		"CREATE INDEX IF NOT EXISTS idx_flows_tier ON flows(tier)",
		"CREATE INDEX IF NOT EXISTS idx_flow_steps_flow_id ON flow_steps(flow_id)",
		"CREATE INDEX IF NOT EXISTS idx_flow_steps_interaction_id ON flow_steps(interaction_id)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// createFeatureTables creates the features and feature_flows tables.
func createFeatureTables(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS features (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE
		)
	`); err != nil {
		return fmt.Errorf("failed to create features table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS feature_flows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			feature_id INTEGER NOT NULL,
			flow_id INTEGER NOT NULL,

			UNIQUE (feature_id, flow_id),
			FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
		)
	`); err != nil {
		return fmt.Errorf("failed to create feature_flows table: %w", err)
	}

	return nil
}

// createDomainsTable creates the domains registry table.
func createDomainsTable(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS domains (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("failed to create domains table: %w", err)
	}
	return nil
}
