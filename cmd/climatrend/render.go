package main

import (
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/lox/climatrend/internal/models"
)

// trendTable renders the ranked climatology table as plain text, top N
// days per temperature metric.
type trendTable struct {
	Limit int
}

func (t *trendTable) RenderTrends(w io.Writer, rows []models.ClimatologyRow) error {
	if err := t.renderMetric(w, "TMAX", rows, func(r models.ClimatologyRow) models.TrendStats { return r.TMaxTrend }); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return t.renderMetric(w, "TMIN", rows, func(r models.ClimatologyRow) models.TrendStats { return r.TMinTrend })
}

func (t *trendTable) renderMetric(w io.Writer, name string, rows []models.ClimatologyRow, trend func(models.ClimatologyRow) models.TrendStats) error {
	ordered := make([]models.ClimatologyRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(a, b int) bool {
		ta, tb := trend(ordered[a]), trend(ordered[b])
		if ta.Rank.Valid != tb.Rank.Valid {
			return ta.Rank.Valid
		}
		return ta.Rank.Int64 < tb.Rank.Int64
	})

	limit := t.Limit
	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}

	fmt.Fprintf(w, "%s trends (°F/year)\n", name)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "rank\tday\tslope\tp_slope\t-log_p*|slope|\tyears")
	for _, row := range ordered[:limit] {
		ts := trend(row)
		if !ts.Rank.Valid {
			continue
		}
		fmt.Fprintf(tw, "%d\t%02d-%02d\t%s\t%s\t%s\t%d\n",
			ts.Rank.Int64, row.Month, row.Day,
			formatNull(ts.Slope, "%+.4f"), formatNull(ts.PSlope, "%.2e"), formatNull(ts.NegLogPAbs, "%.3f"),
			ts.Count)
	}
	return tw.Flush()
}

func formatNull(v driver.Valuer, format string) string {
	val, err := v.Value()
	if err != nil || val == nil {
		return "-"
	}
	return fmt.Sprintf(format, val)
}
