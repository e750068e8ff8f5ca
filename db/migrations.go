package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_projects_table",
		Up: `
			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				name TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'ACTIVE',
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_projects_status;
			DROP TABLE IF EXISTS projects;
		`,
	},
	{
		Version: 2,
		Name:    "create_pages_tables",
		Up: `
			CREATE TABLE IF NOT EXISTS pages (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				url TEXT NOT NULL,
				title TEXT,
				page_type TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW(),
				UNIQUE (project_id, url)
			);
			CREATE INDEX IF NOT EXISTS idx_pages_project_id ON pages(project_id);

			CREATE TABLE IF NOT EXISTS page_contents (
				page_id TEXT PRIMARY KEY REFERENCES pages(id) ON DELETE CASCADE,
				content_text TEXT NOT NULL,
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS page_contents;
			DROP INDEX IF EXISTS idx_pages_project_id;
			DROP TABLE IF EXISTS pages;
		`,
	},
	{
		Version: 3,
		Name:    "create_keywords_table",
		Up: `
			CREATE TABLE IF NOT EXISTS keywords (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				phrase TEXT NOT NULL,
				secondary_terms TEXT[] NOT NULL DEFAULT '{}',
				target_page_id TEXT REFERENCES pages(id) ON DELETE SET NULL,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_keywords_project_id ON keywords(project_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_keywords_project_id;
			DROP TABLE IF EXISTS keywords;
		`,
	},
	{
		Version: 4,
		Name:    "create_tasks_table",
		Up: `
			CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'OPEN',
				priority TEXT NOT NULL DEFAULT 'MEDIUM',
				type TEXT NOT NULL,
				score_current INTEGER NOT NULL DEFAULT 0,
				score_potential INTEGER NOT NULL DEFAULT 0,
				average_position DOUBLE PRECISION,
				conversion_rate DOUBLE PRECISION,
				intent_score DOUBLE PRECISION,
				traffic_gap DOUBLE PRECISION,
				effort_estimate DOUBLE PRECISION,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_tasks_project_type ON tasks(project_id, type);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_tasks_project_type;
			DROP TABLE IF EXISTS tasks;
		`,
	},
	{
		Version: 5,
		Name:    "create_link_suggestions_table",
		Up: `
			CREATE TABLE IF NOT EXISTS link_suggestions (
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				source_page_id TEXT NOT NULL,
				target_page_id TEXT NOT NULL,
				anchor_lower TEXT NOT NULL,
				task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_link_suggestions_signature
				ON link_suggestions(project_id, source_page_id, target_page_id, anchor_lower);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_link_suggestions_signature;
			DROP TABLE IF EXISTS link_suggestions;
		`,
	},
}

// Migrate runs all pending migrations
func Migrate(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	slog.Default().Info("current schema version", "version", currentVersion)

	// Sort migrations by version
	sortedMigrations := make([]Migration, len(migrations))
	copy(sortedMigrations, migrations)
	sort.Slice(sortedMigrations, func(i, j int) bool {
		return sortedMigrations[i].Version < sortedMigrations[j].Version
	})

	for _, m := range sortedMigrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// getCurrentVersion returns the current migration version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration executes a single migration
func runMigration(db *sql.DB, m Migration) error {
	slog.Default().Info("applying migration", "version", m.Version, "name", m.Name)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Rollback rolls back the last migration
func Rollback(db *sql.DB) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			target = &migrations[i]
			break
		}
	}

	if target == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.Down); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", currentVersion); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	slog.Default().Info("migration rolled back", "version", target.Version, "name", target.Name)
	return tx.Commit()
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

// GetMigrationStatus returns the current migration status
func GetMigrationStatus(db *sql.DB) ([]MigrationStatus, error) {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		status = append(status, MigrationStatus{
			Version: m.Version,
			Name:    m.Name,
			Applied: m.Version <= currentVersion,
		})
	}

	sort.Slice(status, func(i, j int) bool {
		return status[i].Version < status[j].Version
	})

	return status, nil
}
