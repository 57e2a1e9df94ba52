package series

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lox/climatrend/internal/models"
)

func day(y int, m time.Month, d int, tmax float64) models.Day {
	return models.Day{
		Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		TMax: sql.NullFloat64{Float64: tmax, Valid: true},
	}
}

func TestMergeIntoEmpty(t *testing.T) {
	incoming := []models.Day{day(2020, 1, 1, 50), day(2020, 1, 2, 52)}

	merged, err := Merge(nil, incoming)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
}

func TestMergeEmptyIncoming(t *testing.T) {
	existing := []models.Day{day(2020, 1, 1, 50)}

	merged, err := Merge(existing, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("len(merged) = %d, want existing series back", len(merged))
	}
}

func TestMergeSupersedesPartialYear(t *testing.T) {
	// The stored series ends with a partial 2023; a re-fetch of 2023
	// replaces every stored 2023 row, including ones the new batch does
	// not cover.
	existing := []models.Day{
		day(2022, 12, 30, 40),
		day(2022, 12, 31, 41),
		day(2023, 1, 1, 42), // old value, should be overwritten
		day(2023, 6, 30, 80),
	}
	incoming := []models.Day{
		day(2023, 1, 1, 45),
		day(2023, 1, 2, 46),
	}

	merged, err := Merge(existing, incoming)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged) != 4 {
		t.Fatalf("len(merged) = %d, want 4", len(merged))
	}
	if got := merged[2].TMax.Float64; got != 45 {
		t.Errorf("2023-01-01 TMax = %v, want value from new batch (45)", got)
	}
	for _, d := range merged {
		if d.Date.Equal(time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("stale 2023-06-30 row survived the merge")
		}
	}
	for i := 1; i < len(merged); i++ {
		if !merged[i-1].Date.Before(merged[i].Date) {
			t.Errorf("merged series out of order at index %d", i)
		}
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := []models.Day{day(2022, 1, 1, 40), day(2023, 1, 1, 42)}
	incoming := []models.Day{day(2023, 1, 1, 45)}

	if _, err := Merge(existing, incoming); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if existing[1].TMax.Float64 != 42 {
		t.Errorf("existing series mutated by Merge")
	}
}

func TestMergeRejectsUnorderedIncoming(t *testing.T) {
	incoming := []models.Day{day(2023, 1, 2, 46), day(2023, 1, 1, 45)}

	_, err := Merge(nil, incoming)
	if !errors.Is(err, models.ErrDataIntegrity) {
		t.Fatalf("err = %v, want ErrDataIntegrity", err)
	}
}

func TestMergeRejectsDuplicateIncomingDate(t *testing.T) {
	incoming := []models.Day{day(2023, 1, 1, 45), day(2023, 1, 1, 46)}

	_, err := Merge(nil, incoming)
	if !errors.Is(err, models.ErrDataIntegrity) {
		t.Fatalf("err = %v, want ErrDataIntegrity", err)
	}
}

func TestReindex(t *testing.T) {
	days := []models.Day{day(1950, 1, 1, 40), day(1975, 6, 1, 70), day(2023, 12, 31, 45)}

	out := Reindex(days, 1950)
	want := []int{0, 25, 73}
	for i, d := range out {
		if d.YearDiff != want[i] {
			t.Errorf("YearDiff[%d] = %d, want %d", i, d.YearDiff, want[i])
		}
	}
	if days[2].YearDiff != 0 {
		t.Errorf("Reindex mutated its input")
	}
}
