package store

import (
	"database/sql"
	"fmt"
	"log"
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
CREATE TABLE IF NOT EXISTS daily_values (
    station_id TEXT NOT NULL,
    date DATE NOT NULL,
    year_diff INTEGER NOT NULL,
    tmax REAL,
    tmin REAL,
    prcp REAL,
    snow REAL,
    snwd REAL,
    snpr REAL,
    tmax_flag TEXT NOT NULL DEFAULT '',
    tmin_flag TEXT NOT NULL DEFAULT '',
    prcp_flag TEXT NOT NULL DEFAULT '',
    snow_flag TEXT NOT NULL DEFAULT '',
    snwd_flag TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (station_id, date)
);

CREATE TABLE IF NOT EXISTS climatology (
    station_id TEXT NOT NULL,
    month INTEGER NOT NULL,
    day INTEGER NOT NULL,
    tmax_min REAL, tmax_max REAL, tmax_mean REAL, tmax_std REAL,
    tmin_min REAL, tmin_max REAL, tmin_mean REAL, tmin_std REAL,
    prcp_min REAL, prcp_max REAL, prcp_mean REAL, prcp_std REAL,
    snow_min REAL, snow_max REAL, snow_mean REAL, snow_std REAL,
    snpr_min REAL, snpr_max REAL, snpr_mean REAL, snpr_std REAL,
    tmax_count INTEGER NOT NULL DEFAULT 0,
    tmax_icept REAL, tmax_slope REAL, tmax_p_slope REAL, tmax_p_icept REAL,
    tmax_log_p REAL, tmax_log_p_slope REAL, tmax_log_p_abs_slope REAL,
    tmax_rank INTEGER,
    tmin_count INTEGER NOT NULL DEFAULT 0,
    tmin_icept REAL, tmin_slope REAL, tmin_p_slope REAL, tmin_p_icept REAL,
    tmin_log_p REAL, tmin_log_p_slope REAL, tmin_log_p_abs_slope REAL,
    tmin_rank INTEGER,
    PRIMARY KEY (station_id, month, day)
);

CREATE TABLE IF NOT EXISTS fetch_checkpoints (
    station_id TEXT PRIMARY KEY,
    next_year INTEGER NOT NULL,
    results BLOB NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_daily_values_date ON daily_values(station_id, date);
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

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

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
