package store

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS sites (
    site_id TEXT NOT NULL,
    aoi TEXT NOT NULL,
    name TEXT,
    description TEXT,
    default_preset TEXT,
    units_json TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (site_id, aoi)
);

CREATE TABLE IF NOT EXISTS daily_data (
    date DATE NOT NULL,
    variable TEXT NOT NULL,
    value REAL,
    UNIQUE(date, variable)
);

CREATE TABLE IF NOT EXISTS daily_variance (
    date DATE NOT NULL,
    variable TEXT NOT NULL,
    value REAL,
    UNIQUE(date, variable)
);

CREATE TABLE IF NOT EXISTS annual_data (
    date DATE NOT NULL,
    variable TEXT NOT NULL,
    value REAL,
    UNIQUE(date, variable)
);

CREATE TABLE IF NOT EXISTS annual_variance (
    date DATE NOT NULL,
    variable TEXT NOT NULL,
    value REAL,
    UNIQUE(date, variable)
);

CREATE INDEX IF NOT EXISTS idx_daily_data_variable ON daily_data(variable);
CREATE INDEX IF NOT EXISTS idx_daily_variance_variable ON daily_variance(variable);
CREATE INDEX IF NOT EXISTS idx_annual_data_variable ON annual_data(variable);
CREATE INDEX IF NOT EXISTS idx_annual_variance_variable ON annual_variance(variable);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	pending := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
