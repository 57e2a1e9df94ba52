package models

import (
	"database/sql"
	"time"
)

// StationInfo is the provider's metadata for one GHCND station. It is
// fetched once at session construction and never changes afterwards; the
// year range bounds every fetch loop.
type StationInfo struct {
	StationID string
	Name      string
	FirstYear int
	LastYear  int
}

// Observation is one raw (date, datatype) record as returned by the
// provider: value in provider units, attributes in the 4-part
// "mflag,qflag,sflag,tobs" form.
type Observation struct {
	Date       time.Time `json:"date"`
	Datatype   string    `json:"datatype"`
	Value      float64   `json:"value"`
	Attributes string    `json:"attributes"`
}

// QualityFlag returns the quality flag (second field) from the combined
// attributes string. Non-empty means the provider's own quality check
// rejected the value.
func (o Observation) QualityFlag() string {
	start := -1
	end := -1
	commas := 0
	for i, c := range o.Attributes {
		if c != ',' {
			continue
		}
		commas++
		if commas == 1 {
			start = i + 1
		} else if commas == 2 {
			end = i
			break
		}
	}
	if start < 0 {
		return ""
	}
	if end < 0 {
		end = len(o.Attributes)
	}
	return o.Attributes[start:end]
}

// Day is one row of the normalized series: one calendar date (never
// February 29), analysis units (°F, inches), derived SNPR, and the
// regression x-axis YearDiff. Temperature cells stay missing when the
// station reported nothing; precipitation cells are zero-filled.
type Day struct {
	Date     time.Time
	YearDiff int

	TMax sql.NullFloat64
	TMin sql.NullFloat64
	Prcp sql.NullFloat64
	Snow sql.NullFloat64
	Snwd sql.NullFloat64
	Snpr sql.NullFloat64

	TMaxFlag string
	TMinFlag string
	PrcpFlag string
	SnowFlag string
	SnwdFlag string
}

// Metric returns the named datatype column of the day.
func (d Day) Metric(name string) sql.NullFloat64 {
	switch name {
	case "TMAX":
		return d.TMax
	case "TMIN":
		return d.TMin
	case "PRCP":
		return d.Prcp
	case "SNOW":
		return d.Snow
	case "SNWD":
		return d.Snwd
	case "SNPR":
		return d.Snpr
	}
	return sql.NullFloat64{}
}

// MetricStats holds the descriptive statistics of one datatype over all
// years of a single (month, day) group.
type MetricStats struct {
	Min  sql.NullFloat64
	Max  sql.NullFloat64
	Mean sql.NullFloat64
	Std  sql.NullFloat64
}

// TrendStats holds the OLS value-vs-yeardiff fit for a (month, day)
// group. All fit outputs are missing when fewer than three non-missing
// years exist. Rank is assigned by the ranking transform, not Compute.
type TrendStats struct {
	Count        int64
	Intercept    sql.NullFloat64
	Slope        sql.NullFloat64
	PSlope       sql.NullFloat64
	PIntercept   sql.NullFloat64
	NegLogP      sql.NullFloat64
	NegLogPSlope sql.NullFloat64
	NegLogPAbs   sql.NullFloat64
	Rank         sql.NullInt64
}

// ClimatologyRow is the full statistics row for one calendar day.
type ClimatologyRow struct {
	Month int
	Day   int

	TMax MetricStats
	TMin MetricStats
	Prcp MetricStats
	Snow MetricStats
	Snpr MetricStats

	TMaxTrend TrendStats
	TMinTrend TrendStats
}

// Checkpoint records the resume point of an interrupted multi-year
// fetch: the next year to request plus every raw record accumulated from
// the years already fetched in full.
type Checkpoint struct {
	NextYear int           `json:"next_year"`
	Results  []Observation `json:"results"`
}
