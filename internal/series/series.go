// Package series maintains the historical daily series: strictly
// date-ordered, one row per calendar date. Every transform returns a new
// slice; callers' inputs are never mutated.
package series

import (
	"fmt"
	"sort"

	"github.com/lox/climatrend/internal/models"
)

// Merge incorporates a freshly normalized batch into the existing
// series. Every existing row dated on or after the incoming batch's
// first date is discarded before the batch is appended: a previously
// stored partial final year is superseded wholesale by the fuller
// re-fetch, never reconciled field by field.
//
// An incoming batch that is not strictly date-ascending fails with
// models.ErrDataIntegrity.
func Merge(existing, incoming []models.Day) ([]models.Day, error) {
	if len(incoming) == 0 {
		return existing, nil
	}

	for i := 1; i < len(incoming); i++ {
		if !incoming[i-1].Date.Before(incoming[i].Date) {
			return nil, fmt.Errorf("%w: incoming batch out of order at %s",
				models.ErrDataIntegrity, incoming[i].Date.Format("2006-01-02"))
		}
	}

	first := incoming[0].Date
	cut := sort.Search(len(existing), func(i int) bool {
		return !existing[i].Date.Before(first)
	})

	merged := make([]models.Day, 0, cut+len(incoming))
	merged = append(merged, existing[:cut]...)
	merged = append(merged, incoming...)
	return merged, nil
}

// Reindex returns a copy of the series with yeardiff recomputed against
// the station's first available year. Yeardiff is a pure function of the
// date and the station constant, so it is rebuilt after every merge
// rather than persisted logic.
func Reindex(days []models.Day, startYear int) []models.Day {
	out := make([]models.Day, len(days))
	for i, day := range days {
		day.YearDiff = day.Date.Year() - startYear
		out[i] = day
	}
	return out
}
