// Package climatology computes the per-calendar-day statistics table
// from the historical series: descriptive stats for every metric group
// and a significance-tested linear trend of temperature against year.
package climatology

import (
	"database/sql"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lox/climatrend/internal/metrics"
	"github.com/lox/climatrend/internal/models"
)

// metricGroups is the column order of the statistics table; trendGroups
// is the subset that gets a regression fit.
var (
	metricGroups = []string{"TMAX", "TMIN", "SNOW", "PRCP", "SNPR"}
	trendGroups  = map[string]bool{"TMAX": true, "TMIN": true}
)

// Compute derives one statistics row per (month, day) present in the
// series, in calendar order. The table is always rebuilt from scratch;
// rows are never patched incrementally.
func Compute(days []models.Day) []models.ClimatologyRow {
	groups := make(map[[2]int][]models.Day)
	for _, day := range days {
		key := [2]int{int(day.Date.Month()), day.Date.Day()}
		groups[key] = append(groups[key], day)
	}

	var rows []models.ClimatologyRow
	for month := 1; month <= 12; month++ {
		for dom := 1; dom <= daysInMonth(month); dom++ {
			group, ok := groups[[2]int{month, dom}]
			if !ok {
				continue
			}
			rows = append(rows, computeRow(month, dom, group))
		}
	}

	metrics.StatsRecomputes.Inc()
	return rows
}

func computeRow(month, dom int, group []models.Day) models.ClimatologyRow {
	row := models.ClimatologyRow{Month: month, Day: dom}

	for _, name := range metricGroups {
		var values []float64
		var pairs [][2]float64
		for _, day := range group {
			v := day.Metric(name)
			if !v.Valid {
				continue
			}
			values = append(values, v.Float64)
			pairs = append(pairs, [2]float64{float64(day.YearDiff), v.Float64})
		}

		ms := describe(values)
		switch name {
		case "TMAX":
			row.TMax = ms
		case "TMIN":
			row.TMin = ms
		case "PRCP":
			row.Prcp = ms
		case "SNOW":
			row.Snow = ms
		case "SNPR":
			row.Snpr = ms
		}

		if trendGroups[name] {
			ts := fitTrend(pairs)
			if name == "TMAX" {
				row.TMaxTrend = ts
			} else {
				row.TMinTrend = ts
			}
		}
	}

	return row
}

// describe computes min, max, mean and sample standard deviation over
// the non-missing values. The sample std needs at least two values.
func describe(values []float64) models.MetricStats {
	if len(values) == 0 {
		return models.MetricStats{}
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	ms := models.MetricStats{
		Min:  sql.NullFloat64{Float64: min, Valid: true},
		Max:  sql.NullFloat64{Float64: max, Valid: true},
		Mean: sql.NullFloat64{Float64: stat.Mean(values, nil), Valid: true},
	}
	if len(values) > 1 {
		ms.Std = sql.NullFloat64{Float64: stat.StdDev(values, nil), Valid: true}
	}
	return ms
}

// fitTrend runs OLS of value on yeardiff over the non-missing pairs and
// attaches two-sided Student's-t p-values for slope and intercept. With
// n <= 2 the standard errors are undefined and every fit output is left
// missing; insufficient data degrades, it never errors.
func fitTrend(pairs [][2]float64) models.TrendStats {
	ts := models.TrendStats{Count: int64(len(pairs))}
	n := len(pairs)
	if n <= 2 {
		return ts
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range pairs {
		xs[i], ys[i] = p[0], p[1]
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)

	xbar := stat.Mean(xs, nil)
	var sxx, sse float64
	for i := range xs {
		dx := xs[i] - xbar
		sxx += dx * dx
		resid := ys[i] - (intercept + slope*xs[i])
		sse += resid * resid
	}
	if sxx == 0 {
		// all observations in a single year; no trend is identifiable
		return ts
	}

	dof := float64(n - 2)
	residVar := sse / dof
	seSlope := math.Sqrt(residVar / sxx)
	seIntercept := math.Sqrt(residVar * (1/float64(n) + xbar*xbar/sxx))

	ts.Slope = sql.NullFloat64{Float64: slope, Valid: true}
	ts.Intercept = sql.NullFloat64{Float64: intercept, Valid: true}
	ts.PSlope = pValue(slope, seSlope, dof)
	ts.PIntercept = pValue(intercept, seIntercept, dof)

	// Significance-weighted trend magnitude columns. p = 0 would put
	// -log10(p) at infinity, so degenerate fits stay missing.
	if ts.PSlope.Valid && ts.PSlope.Float64 > 0 {
		logP := -math.Log10(ts.PSlope.Float64)
		ts.NegLogP = sql.NullFloat64{Float64: logP, Valid: true}
		ts.NegLogPSlope = sql.NullFloat64{Float64: logP * slope, Valid: true}
		ts.NegLogPAbs = sql.NullFloat64{Float64: logP * math.Abs(slope), Valid: true}
	}

	return ts
}

// pValue is the two-sided survival probability of |estimate/se| under a
// Student's-t distribution with the given degrees of freedom.
func pValue(estimate, se, dof float64) sql.NullFloat64 {
	if se == 0 || math.IsNaN(se) {
		return sql.NullFloat64{}
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	p := 2 * dist.Survival(math.Abs(estimate/se))
	return sql.NullFloat64{Float64: p, Valid: true}
}

// daysInMonth is for the 365-day calendar; February 29 never appears in
// the series.
func daysInMonth(month int) int {
	switch month {
	case 2:
		return 28
	case 4, 6, 9, 11:
		return 30
	}
	return 31
}
