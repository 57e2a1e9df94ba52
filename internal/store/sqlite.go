// Package store persists the historical series and the climatology table
// in SQLite. Both tables are replaced wholesale on save: the core treats
// persistence writes as all-or-nothing, and each save runs in a single
// transaction.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/climatrend/internal/models"
)

const dateFormat = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveSeries replaces the station's persisted historical series.
func (s *Store) SaveSeries(stationID string, days []models.Day) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM daily_values WHERE station_id = ?`, stationID); err != nil {
		return fmt.Errorf("clear series: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO daily_values (station_id, date, year_diff, tmax, tmin, prcp, snow, snwd, snpr,
		    tmax_flag, tmin_flag, prcp_flag, snow_flag, snwd_flag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range days {
		if _, err := stmt.Exec(stationID, d.Date.Format(dateFormat), d.YearDiff,
			d.TMax, d.TMin, d.Prcp, d.Snow, d.Snwd, d.Snpr,
			d.TMaxFlag, d.TMinFlag, d.PrcpFlag, d.SnowFlag, d.SnwdFlag); err != nil {
			return fmt.Errorf("insert %s: %w", d.Date.Format(dateFormat), err)
		}
	}

	return tx.Commit()
}

// LoadSeries returns the station's historical series in date order, or
// an empty slice if nothing has been persisted yet.
func (s *Store) LoadSeries(stationID string) ([]models.Day, error) {
	rows, err := s.db.Query(`
		SELECT date, year_diff, tmax, tmin, prcp, snow, snwd, snpr,
		       tmax_flag, tmin_flag, prcp_flag, snow_flag, snwd_flag
		FROM daily_values
		WHERE station_id = ?
		ORDER BY date ASC
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []models.Day
	for rows.Next() {
		var d models.Day
		var dateStr string
		if err := rows.Scan(&dateStr, &d.YearDiff, &d.TMax, &d.TMin, &d.Prcp, &d.Snow, &d.Snwd, &d.Snpr,
			&d.TMaxFlag, &d.TMinFlag, &d.PrcpFlag, &d.SnowFlag, &d.SnwdFlag); err != nil {
			return nil, err
		}
		d.Date, err = time.Parse(dateFormat, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse series date %q: %w", dateStr, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// SaveClimatology replaces the station's statistics table.
func (s *Store) SaveClimatology(stationID string, rows []models.ClimatologyRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM climatology WHERE station_id = ?`, stationID); err != nil {
		return fmt.Errorf("clear climatology: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO climatology (station_id, month, day,
		    tmax_min, tmax_max, tmax_mean, tmax_std,
		    tmin_min, tmin_max, tmin_mean, tmin_std,
		    prcp_min, prcp_max, prcp_mean, prcp_std,
		    snow_min, snow_max, snow_mean, snow_std,
		    snpr_min, snpr_max, snpr_mean, snpr_std,
		    tmax_count, tmax_icept, tmax_slope, tmax_p_slope, tmax_p_icept,
		    tmax_log_p, tmax_log_p_slope, tmax_log_p_abs_slope, tmax_rank,
		    tmin_count, tmin_icept, tmin_slope, tmin_p_slope, tmin_p_icept,
		    tmin_log_p, tmin_log_p_slope, tmin_log_p_abs_slope, tmin_rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(stationID, r.Month, r.Day,
			r.TMax.Min, r.TMax.Max, r.TMax.Mean, r.TMax.Std,
			r.TMin.Min, r.TMin.Max, r.TMin.Mean, r.TMin.Std,
			r.Prcp.Min, r.Prcp.Max, r.Prcp.Mean, r.Prcp.Std,
			r.Snow.Min, r.Snow.Max, r.Snow.Mean, r.Snow.Std,
			r.Snpr.Min, r.Snpr.Max, r.Snpr.Mean, r.Snpr.Std,
			r.TMaxTrend.Count, r.TMaxTrend.Intercept, r.TMaxTrend.Slope, r.TMaxTrend.PSlope, r.TMaxTrend.PIntercept,
			r.TMaxTrend.NegLogP, r.TMaxTrend.NegLogPSlope, r.TMaxTrend.NegLogPAbs, r.TMaxTrend.Rank,
			r.TMinTrend.Count, r.TMinTrend.Intercept, r.TMinTrend.Slope, r.TMinTrend.PSlope, r.TMinTrend.PIntercept,
			r.TMinTrend.NegLogP, r.TMinTrend.NegLogPSlope, r.TMinTrend.NegLogPAbs, r.TMinTrend.Rank); err != nil {
			return fmt.Errorf("insert %02d-%02d: %w", r.Month, r.Day, err)
		}
	}

	return tx.Commit()
}

// LoadClimatology returns the station's statistics table in calendar
// order, or an empty slice if statistics have never been computed.
func (s *Store) LoadClimatology(stationID string) ([]models.ClimatologyRow, error) {
	rows, err := s.db.Query(`
		SELECT month, day,
		       tmax_min, tmax_max, tmax_mean, tmax_std,
		       tmin_min, tmin_max, tmin_mean, tmin_std,
		       prcp_min, prcp_max, prcp_mean, prcp_std,
		       snow_min, snow_max, snow_mean, snow_std,
		       snpr_min, snpr_max, snpr_mean, snpr_std,
		       tmax_count, tmax_icept, tmax_slope, tmax_p_slope, tmax_p_icept,
		       tmax_log_p, tmax_log_p_slope, tmax_log_p_abs_slope, tmax_rank,
		       tmin_count, tmin_icept, tmin_slope, tmin_p_slope, tmin_p_icept,
		       tmin_log_p, tmin_log_p_slope, tmin_log_p_abs_slope, tmin_rank
		FROM climatology
		WHERE station_id = ?
		ORDER BY month ASC, day ASC
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ClimatologyRow
	for rows.Next() {
		var r models.ClimatologyRow
		if err := rows.Scan(&r.Month, &r.Day,
			&r.TMax.Min, &r.TMax.Max, &r.TMax.Mean, &r.TMax.Std,
			&r.TMin.Min, &r.TMin.Max, &r.TMin.Mean, &r.TMin.Std,
			&r.Prcp.Min, &r.Prcp.Max, &r.Prcp.Mean, &r.Prcp.Std,
			&r.Snow.Min, &r.Snow.Max, &r.Snow.Mean, &r.Snow.Std,
			&r.Snpr.Min, &r.Snpr.Max, &r.Snpr.Mean, &r.Snpr.Std,
			&r.TMaxTrend.Count, &r.TMaxTrend.Intercept, &r.TMaxTrend.Slope, &r.TMaxTrend.PSlope, &r.TMaxTrend.PIntercept,
			&r.TMaxTrend.NegLogP, &r.TMaxTrend.NegLogPSlope, &r.TMaxTrend.NegLogPAbs, &r.TMaxTrend.Rank,
			&r.TMinTrend.Count, &r.TMinTrend.Intercept, &r.TMinTrend.Slope, &r.TMinTrend.PSlope, &r.TMinTrend.PIntercept,
			&r.TMinTrend.NegLogP, &r.TMinTrend.NegLogPSlope, &r.TMinTrend.NegLogPAbs, &r.TMinTrend.Rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
