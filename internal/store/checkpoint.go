package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/climatrend/internal/models"
)

// The checkpoint row makes a multi-year fetch idempotent under
// interruption: its presence on startup is the resume signal, its
// absence after an update is the success signal.

func (s *Store) CheckpointExists(stationID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM fetch_checkpoints WHERE station_id = ?`, stationID).Scan(&count)
	return count > 0, err
}

func (s *Store) ReadCheckpoint(stationID string) (models.Checkpoint, error) {
	var (
		cp   models.Checkpoint
		blob []byte
	)
	err := s.db.QueryRow(`SELECT next_year, results FROM fetch_checkpoints WHERE station_id = ?`, stationID).
		Scan(&cp.NextYear, &blob)
	if err == sql.ErrNoRows {
		return cp, fmt.Errorf("no checkpoint for %s", stationID)
	}
	if err != nil {
		return cp, err
	}
	if err := json.Unmarshal(blob, &cp.Results); err != nil {
		return cp, fmt.Errorf("decode checkpoint results: %w", err)
	}
	return cp, nil
}

func (s *Store) WriteCheckpoint(stationID string, cp models.Checkpoint) error {
	results := cp.Results
	if results == nil {
		results = []models.Observation{}
	}
	blob, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode checkpoint results: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO fetch_checkpoints (station_id, next_year, results, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			next_year = excluded.next_year,
			results = excluded.results,
			updated_at = excluded.updated_at
	`, stationID, cp.NextYear, blob, time.Now().UTC())
	return err
}

func (s *Store) ClearCheckpoint(stationID string) error {
	_, err := s.db.Exec(`DELETE FROM fetch_checkpoints WHERE station_id = ?`, stationID)
	return err
}
