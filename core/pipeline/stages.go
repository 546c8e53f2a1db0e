package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/core/footprint"
	"github.com/jiji14/e-mission-server/internal/archive"
	"github.com/jiji14/e-mission-server/internal/codec"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/section"
	"github.com/jiji14/e-mission-server/schema"
)

// Stage is one step of the pipeline.
type Stage interface {
	// Name identifies the stage and keys its watermark.
	Name() schema.PipelineStage

	// Upstream names the stage whose watermark caps this one, if any.
	Upstream() (schema.PipelineStage, bool)

	// Run processes the entries matching q and reports how many items it handled.
	Run(ctx context.Context, user uuid.UUID, q schema.TimeQuery) (int, error)
}

// ConfirmTripsStage turns cleaned sections into confirmed trips.
// Trips that already have a confirmed trip entry are skipped, so reruns add nothing.
type ConfirmTripsStage struct {
	series contract.TimeSeries
	loader *section.Loader
	now    func() time.Time
}

// NewConfirmTripsStage returns the CONFIRM_TRIPS stage.
func NewConfirmTripsStage(series contract.TimeSeries) *ConfirmTripsStage {
	return &ConfirmTripsStage{series: series, loader: section.NewLoader(series), now: time.Now}
}

// Name implements Stage.
func (s *ConfirmTripsStage) Name() schema.PipelineStage { return schema.StageConfirmTrips }

// Upstream implements Stage.
func (s *ConfirmTripsStage) Upstream() (schema.PipelineStage, bool) { return "", false }

// Run implements Stage.
func (s *ConfirmTripsStage) Run(ctx context.Context, user uuid.UUID, q schema.TimeQuery) (int, error) {
	inWindow, err := s.loader.Query(ctx, user, &q)
	if err != nil {
		return 0, err
	}
	if len(inWindow) == 0 {
		return 0, nil
	}

	confirmed, err := s.confirmedTripIDs(ctx, user)
	if err != nil {
		return 0, err
	}
	var tripIDs []string
	seen := make(map[string]struct{})
	for _, sec := range inWindow {
		if _, ok := confirmed[sec.TripID]; ok {
			continue
		}
		if _, ok := seen[sec.TripID]; ok {
			continue
		}
		seen[sec.TripID] = struct{}{}
		tripIDs = append(tripIDs, sec.TripID)
	}
	if len(tripIDs) == 0 {
		return 0, nil
	}

	sections, err := s.loader.ForTrips(ctx, user, tripIDs)
	if err != nil {
		return 0, err
	}
	writeTs := schema.TimeToEpoch(s.now())
	trips := section.BuildTrips(sections)
	entries := make([]schema.Entry, 0, len(trips))
	for _, trip := range trips {
		e, err := codec.NewEntry(user, schema.KeyConfirmedTrip, trip, writeTs)
		if err != nil {
			return 0, err
		}
		entries = append(entries, e)
	}
	if err := s.series.InsertEntries(ctx, entries...); err != nil {
		return 0, fmt.Errorf("failed to store confirmed trips: %w", err)
	}
	return len(entries), nil
}

// confirmedTripIDs returns the trips that already have a confirmed trip entry.
func (s *ConfirmTripsStage) confirmedTripIDs(ctx context.Context, user uuid.UUID) (map[string]struct{}, error) {
	entries, err := s.series.FindEntries(ctx, user, []string{schema.KeyConfirmedTrip}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load confirmed trips: %w", err)
	}
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		trip, err := codec.DecodeAs[schema.TripData](e)
		if err != nil {
			return nil, err
		}
		ids[trip.TripID] = struct{}{}
	}
	return ids, nil
}

// ExportStage archives each window to a gzip file.
type ExportStage struct {
	series contract.TimeSeries
	dir    string
	opts   archive.Options
	logger *slog.Logger
}

// NewExportStage returns the EXPORT stage writing archives into dir.
func NewExportStage(series contract.TimeSeries, dir string, opts archive.Options, logger *slog.Logger) *ExportStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportStage{series: series, dir: dir, opts: opts, logger: logger}
}

// Name implements Stage.
func (s *ExportStage) Name() schema.PipelineStage { return schema.StageExport }

// Upstream implements Stage.
func (s *ExportStage) Upstream() (schema.PipelineStage, bool) { return schema.StageConfirmTrips, true }

// Run implements Stage.
func (s *ExportStage) Run(ctx context.Context, user uuid.UUID, q schema.TimeQuery) (int, error) {
	prefix := archive.FileName(s.dir, user, q.StartTs, q.EndTs)
	result, err := archive.ExportQuery(ctx, user, s.series, q, prefix, s.opts)
	if err != nil {
		return 0, err
	}
	s.logger.Info("archive written", "user", user, "path", result.Path, "entries", result.Entries, "purged", result.Purged, "reused", result.Reused)
	return result.Entries, nil
}

// ScoreStage scores each window and stores the report in the score cache.
type ScoreStage struct {
	engine *footprint.Engine
}

// NewScoreStage returns the SCORE stage.
func NewScoreStage(engine *footprint.Engine) *ScoreStage {
	return &ScoreStage{engine: engine}
}

// Name implements Stage.
func (s *ScoreStage) Name() schema.PipelineStage { return schema.StageScore }

// Upstream implements Stage.
func (s *ScoreStage) Upstream() (schema.PipelineStage, bool) { return schema.StageConfirmTrips, true }

// Run implements Stage. Sections are windowed by their start time whatever axis q is on.
func (s *ScoreStage) Run(ctx context.Context, user uuid.UUID, q schema.TimeQuery) (int, error) {
	score := s.engine.Score
	if q.StartExclusive {
		score = s.engine.ScoreAfter
	}
	report, err := score(ctx, user, schema.EpochToTime(q.StartTs), schema.EpochToTime(q.EndTs))
	if err != nil {
		return 0, err
	}
	return report.SectionCount, nil
}
