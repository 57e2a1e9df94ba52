package climatology

import (
	"database/sql"
	"sort"

	"github.com/lox/climatrend/internal/models"
)

// Weight column names accepted by Rank. DefaultWeight orders days by how
// statistically convincing their warming or cooling trend is.
const (
	WeightNegLogPAbs = "-log_p*abs_slope"
	WeightNegLogP    = "-log_p*slope"
	WeightSlope      = "slope"
	WeightPSlope     = "p_slope"

	DefaultWeight = WeightNegLogPAbs
)

// RankOptions selects the weighting column and direction for the ranking
// transform. The zero value ranks by significance-weighted slope
// magnitude, descending.
type RankOptions struct {
	By        string
	Ascending bool
}

// Rank returns a copy of the table with ordinal ranks assigned to the
// TMAX and TMIN trend columns independently: rank 1 is the strongest
// trend under the chosen weight. Ranking is ordinal, so equal weights
// get distinct ranks in input order; rows with a missing weight sort
// after every ranked value, also in input order.
func Rank(rows []models.ClimatologyRow, opts RankOptions) []models.ClimatologyRow {
	if opts.By == "" {
		opts.By = DefaultWeight
	}

	out := make([]models.ClimatologyRow, len(rows))
	copy(out, rows)

	rankTrend(out, opts, func(r *models.ClimatologyRow) *models.TrendStats { return &r.TMaxTrend })
	rankTrend(out, opts, func(r *models.ClimatologyRow) *models.TrendStats { return &r.TMinTrend })
	return out
}

func rankTrend(rows []models.ClimatologyRow, opts RankOptions, trend func(*models.ClimatologyRow) *models.TrendStats) {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		va := weightOf(trend(&rows[idx[a]]), opts.By)
		vb := weightOf(trend(&rows[idx[b]]), opts.By)
		switch {
		case va.Valid && !vb.Valid:
			return true
		case !va.Valid:
			return false
		case opts.Ascending:
			return va.Float64 < vb.Float64
		default:
			return va.Float64 > vb.Float64
		}
	})

	for pos, i := range idx {
		trend(&rows[i]).Rank = sql.NullInt64{Int64: int64(pos + 1), Valid: true}
	}
}

func weightOf(ts *models.TrendStats, by string) sql.NullFloat64 {
	switch by {
	case WeightNegLogPAbs:
		return ts.NegLogPAbs
	case WeightNegLogP:
		return ts.NegLogPSlope
	case WeightSlope:
		return ts.Slope
	case WeightPSlope:
		return ts.PSlope
	}
	return sql.NullFloat64{}
}
