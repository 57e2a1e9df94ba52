// Package station orchestrates the acquisition pipeline for a single
// GHCND station: fetch years from the provider (resuming from a
// checkpoint when one exists), normalize, merge into the historical
// series, recompute the climatology table, and persist everything.
package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/lox/climatrend/internal/climatology"
	"github.com/lox/climatrend/internal/models"
	"github.com/lox/climatrend/internal/normalize"
	"github.com/lox/climatrend/internal/series"
)

// Provider is the remote observation source: station metadata plus one
// calendar year of raw records per call. A nil, nil return from Year is
// a valid "no data this year".
type Provider interface {
	StationInfo(ctx context.Context) (models.StationInfo, error)
	Year(ctx context.Context, year int) ([]models.Observation, error)
}

// HistoryStore persists the historical daily series.
type HistoryStore interface {
	LoadSeries(stationID string) ([]models.Day, error)
	SaveSeries(stationID string, days []models.Day) error
}

// StatsStore persists the climatology table.
type StatsStore interface {
	LoadClimatology(stationID string) ([]models.ClimatologyRow, error)
	SaveClimatology(stationID string, rows []models.ClimatologyRow) error
}

// CheckpointStore persists the in-progress fetch state between runs.
type CheckpointStore interface {
	CheckpointExists(stationID string) (bool, error)
	ReadCheckpoint(stationID string) (models.Checkpoint, error)
	WriteCheckpoint(stationID string, cp models.Checkpoint) error
	ClearCheckpoint(stationID string) error
}

// Store is the full persistence collaborator a session needs.
type Store interface {
	HistoryStore
	StatsStore
	CheckpointStore
}

// Renderer turns a ranked climatology table into presentation output.
// Rendering carries no algorithmic weight, so the session only holds the
// seam.
type Renderer interface {
	RenderTrends(w io.Writer, rows []models.ClimatologyRow) error
}

// Session is the single writer for one station's persisted state. Two
// sessions against the same database are undefined behavior and not
// guarded against.
type Session struct {
	provider Provider
	store    Store
	renderer Renderer

	stationID string
	info      models.StationInfo
	series    []models.Day
	stats     []models.ClimatologyRow
	hasData   bool
}

type Option func(*Session)

// WithRenderer attaches a presentation backend for Render.
func WithRenderer(r Renderer) Option {
	return func(s *Session) { s.renderer = r }
}

// New fetches the station metadata and loads any previously persisted
// series and statistics. Partial persisted state (series without
// statistics) is valid. A bad station id or an unreachable provider
// fails construction.
func New(ctx context.Context, provider Provider, store Store, stationID string, opts ...Option) (*Session, error) {
	s := &Session{
		provider:  provider,
		store:     store,
		stationID: stationID,
	}
	for _, opt := range opts {
		opt(s)
	}

	info, err := provider.StationInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", stationID, err)
	}
	s.info = info

	s.series, err = store.LoadSeries(stationID)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}
	s.stats, err = store.LoadClimatology(stationID)
	if err != nil {
		return nil, fmt.Errorf("load climatology: %w", err)
	}
	s.hasData = len(s.series) > 0

	return s, nil
}

// Update drives the full fetch → normalize → merge → recompute →
// persist cycle. It is safe to call repeatedly: with no new remote data
// the persisted tables come out unchanged. A provider failure mid-run
// leaves the checkpoint holding every fully fetched year, so the next
// call resumes instead of restarting.
func (s *Session) Update(ctx context.Context) error {
	begin := s.info.FirstYear
	if s.hasData {
		last := s.series[len(s.series)-1].Date
		begin = last.AddDate(0, 0, 1).Year()
	}
	end := s.info.LastYear

	var results []models.Observation

	// A stored checkpoint takes precedence over the series-derived start
	// year: an interrupted run resumes exactly where it left off.
	exists, err := s.store.CheckpointExists(s.stationID)
	if err != nil {
		return fmt.Errorf("checkpoint exists: %w", err)
	}
	if exists {
		cp, err := s.store.ReadCheckpoint(s.stationID)
		if err != nil {
			return fmt.Errorf("read checkpoint: %w", err)
		}
		begin = cp.NextYear
		results = cp.Results
		log.Printf("station %s: resuming fetch at %d (%d records buffered)", s.stationID, begin, len(results))
	} else {
		if err := s.store.WriteCheckpoint(s.stationID, models.Checkpoint{NextYear: begin}); err != nil {
			return fmt.Errorf("write checkpoint: %w", err)
		}
	}

	for year := begin; year <= end; year++ {
		batch, err := s.provider.Year(ctx, year)
		if err != nil {
			return fmt.Errorf("fetch year %d: %w", year, err)
		}
		results = append(results, batch...)

		if err := s.store.WriteCheckpoint(s.stationID, models.Checkpoint{NextYear: year + 1, Results: results}); err != nil {
			return fmt.Errorf("write checkpoint: %w", err)
		}
		log.Printf("station %s: fetched %d (%d records)", s.stationID, year, len(batch))
	}

	if len(results) > 0 {
		if err := s.ingest(results); err != nil {
			return err
		}
	}

	if err := s.store.ClearCheckpoint(s.stationID); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// ingest runs the downstream pipeline over a batch of raw records. Each
// stage produces a new value; no stage mutates a table it did not build.
func (s *Session) ingest(results []models.Observation) error {
	days, err := normalize.Normalize(results)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	merged, err := series.Merge(s.series, days)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	merged = series.Reindex(merged, s.info.FirstYear)

	if err := s.store.SaveSeries(s.stationID, merged); err != nil {
		return fmt.Errorf("save series: %w", err)
	}

	rows := climatology.Rank(climatology.Compute(merged), climatology.RankOptions{})
	if err := s.store.SaveClimatology(s.stationID, rows); err != nil {
		return fmt.Errorf("save climatology: %w", err)
	}

	s.series = merged
	s.stats = rows
	s.hasData = true
	log.Printf("station %s: series %d days, climatology %d rows", s.stationID, len(merged), len(rows))
	return nil
}

// Trends re-runs the ranking transform over the current statistics with
// a different weighting, without touching persisted state.
func (s *Session) Trends(opts climatology.RankOptions) ([]models.ClimatologyRow, error) {
	if len(s.stats) == 0 {
		return nil, errors.New("no statistics computed yet; run an update first")
	}
	return climatology.Rank(s.stats, opts), nil
}

// Render writes the ranked trends through the attached renderer.
func (s *Session) Render(w io.Writer, opts climatology.RankOptions) error {
	if s.renderer == nil {
		return errors.New("no renderer configured")
	}
	rows, err := s.Trends(opts)
	if err != nil {
		return err
	}
	return s.renderer.RenderTrends(w, rows)
}

// Info returns the immutable station metadata.
func (s *Session) Info() models.StationInfo { return s.info }

// HasData reports whether a historical series is loaded.
func (s *Session) HasData() bool { return s.hasData }

// Series returns the in-memory historical series.
func (s *Session) Series() []models.Day { return s.series }

// Stats returns the in-memory climatology table.
func (s *Session) Stats() []models.ClimatologyRow { return s.stats }
