// Package normalize turns flat provider records into the clean daily
// series the statistics engine consumes: one row per calendar date, one
// column per datatype, analysis units.
package normalize

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lox/climatrend/internal/metrics"
	"github.com/lox/climatrend/internal/models"
)

const (
	// Temperatures above this are instrument garbage, not weather.
	maxPlausibleTempF = 130.0

	mmPerInch = 25.4
)

// Normalize pivots a batch of raw observations into date-ascending daily
// rows. February 29 is dropped unconditionally so every year has 365
// comparable days. Temperatures convert from tenths-°C to °F and are
// scrubbed above 130°F; precipitation converts from tenths-mm (PRCP) or
// mm (SNOW, SNWD) to inches. A value whose quality flag is non-empty is
// masked to missing after conversion. Absent PRCP/SNOW/SNWD cells are
// filled with zero; flag-masked cells are not, and absent temperatures
// stay missing. SNPR = PRCP + 0.1*SNOW is derived last.
//
// A duplicate (date, datatype) pair in one batch is a caller error and
// fails with models.ErrDataIntegrity.
func Normalize(records []models.Observation) ([]models.Day, error) {
	byDate := make(map[time.Time]*models.Day)
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		date := time.Date(rec.Date.Year(), rec.Date.Month(), rec.Date.Day(), 0, 0, 0, 0, time.UTC)
		if date.Month() == time.February && date.Day() == 29 {
			continue
		}

		switch rec.Datatype {
		case "TMAX", "TMIN", "PRCP", "SNOW", "SNWD":
		default:
			// datatype outside the modeled set
			continue
		}

		key := date.Format("2006-01-02") + "|" + rec.Datatype
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate record for %s", models.ErrDataIntegrity, key)
		}
		seen[key] = true

		day := byDate[date]
		if day == nil {
			day = &models.Day{Date: date}
			byDate[date] = day
		}

		value := convert(rec.Datatype, rec.Value)
		qflag := rec.QualityFlag()
		if qflag != "" {
			value = sql.NullFloat64{}
		}

		switch rec.Datatype {
		case "TMAX":
			day.TMax, day.TMaxFlag = value, qflag
		case "TMIN":
			day.TMin, day.TMinFlag = value, qflag
		case "PRCP":
			day.Prcp, day.PrcpFlag = value, qflag
		case "SNOW":
			day.Snow, day.SnowFlag = value, qflag
		case "SNWD":
			day.Snwd, day.SnwdFlag = value, qflag
		}
	}

	days := make([]models.Day, 0, len(byDate))
	for _, day := range byDate {
		fillAndDerive(day)
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	metrics.DaysNormalized.Add(float64(len(days)))
	return days, nil
}

// convert maps a raw provider value into analysis units. Implausible
// temperatures come back missing.
func convert(datatype string, v float64) sql.NullFloat64 {
	switch datatype {
	case "TMAX", "TMIN":
		f := (v*0.1)*9/5 + 32
		if f > maxPlausibleTempF {
			return sql.NullFloat64{}
		}
		return sql.NullFloat64{Float64: f, Valid: true}
	case "PRCP":
		return sql.NullFloat64{Float64: (v * 0.1) / mmPerInch, Valid: true}
	case "SNOW", "SNWD":
		return sql.NullFloat64{Float64: v / mmPerInch, Valid: true}
	}
	return sql.NullFloat64{}
}

// fillAndDerive applies the zero-fill policy for truly-absent
// precipitation cells and derives SNPR. A cell masked by a quality flag
// keeps its missing state rather than becoming a fake zero.
func fillAndDerive(day *models.Day) {
	if !day.Prcp.Valid && day.PrcpFlag == "" {
		day.Prcp = sql.NullFloat64{Float64: 0, Valid: true}
	}
	if !day.Snow.Valid && day.SnowFlag == "" {
		day.Snow = sql.NullFloat64{Float64: 0, Valid: true}
	}
	if !day.Snwd.Valid && day.SnwdFlag == "" {
		day.Snwd = sql.NullFloat64{Float64: 0, Valid: true}
	}

	if day.Prcp.Valid && day.Snow.Valid {
		day.Snpr = sql.NullFloat64{Float64: day.Prcp.Float64 + day.Snow.Float64*0.1, Valid: true}
	}
}
