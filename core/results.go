package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/jiji14/e-mission-server/core/footprint"
	"github.com/jiji14/e-mission-server/core/pipeline"
	"github.com/jiji14/e-mission-server/internal/archive"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/section"
	"github.com/jiji14/e-mission-server/schema"
)

// NewScoreEngine builds the footprint engine for cfg, caching reports when the
// score cache is enabled and available.
func NewScoreEngine(cfg *contract.Config, mgr contract.StoreManager, cached bool) *footprint.Engine {
	var opts []footprint.Option
	if cache := mgr.GetScoreCache(); cached && cache != nil {
		opts = append(opts, footprint.WithCache(cache, footprint.DefaultCacheTTL))
	}
	return footprint.NewEngine(section.NewLoader(mgr.GetTimeSeries()), cfg.Policy, opts...)
}

// NewPipelineRunner builds a runner with every stage wired to the configured stores.
// The SCORE stage always writes through the score cache when one is configured.
func NewPipelineRunner(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) *pipeline.Runner {
	logger := newLogger(ctx)
	series := mgr.GetTimeSeries()
	stages := []pipeline.Stage{
		pipeline.NewConfirmTripsStage(series),
		pipeline.NewExportStage(series, cfg.ArchiveDir, archive.Options{Purge: cfg.Purge, Parquet: cfg.Parquet}, logger),
		pipeline.NewScoreStage(NewScoreEngine(cfg, mgr, true)),
	}
	return pipeline.NewRunner(series, mgr.GetStateStore(), stages,
		pipeline.WithLogger(logger),
		pipeline.WithLag(cfg.Lag),
		pipeline.WithTimeout(cfg.Timeout),
		pipeline.WithTimeField(cfg.TimeField),
	)
}

// newLogger returns the stage event logger. Suppressed contexts log nothing.
func newLogger(ctx context.Context) *slog.Logger {
	if shouldSuppressHeader(ctx) {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// GetPipelineResults runs the configured stages for the configured users.
func GetPipelineResults(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) ([]schema.StageOutcome, error) {
	series := mgr.GetTimeSeries()
	if series == nil || mgr.GetStateStore() == nil {
		return nil, errStoreNotInitialized
	}
	users, err := resolveUsers(ctx, cfg, series)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return []schema.StageOutcome{}, nil
	}
	return NewPipelineRunner(ctx, cfg, mgr).RunUsers(ctx, users, cfg.Stages, cfg.Workers)
}

// GetPipelineStates returns the state of each configured stage for the configured users.
func GetPipelineStates(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) ([]schema.PipelineState, error) {
	series, states := mgr.GetTimeSeries(), mgr.GetStateStore()
	if series == nil || states == nil {
		return nil, errStoreNotInitialized
	}
	users, err := resolveUsers(ctx, cfg, series)
	if err != nil {
		return nil, err
	}
	var out []schema.PipelineState
	for _, user := range users {
		for _, stage := range cfg.Stages {
			state, err := states.GetState(ctx, user, stage)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s state for user %s: %w", stage, user, err)
			}
			out = append(out, state)
		}
	}
	return out, nil
}

// GetPipelineRuns returns the recorded runs of the configured stages.
func GetPipelineRuns(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) ([]schema.PipelineRunRecord, error) {
	states := mgr.GetStateStore()
	if states == nil {
		return nil, errStoreNotInitialized
	}
	runs, err := states.ListRuns(ctx, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	return slices.DeleteFunc(runs, func(r schema.PipelineRunRecord) bool {
		return !slices.Contains(cfg.Stages, r.Stage)
	}), nil
}

// GetExportResult archives one user's entries in [StartTime, EndTime] on the configured axis.
// Bounds are truncated to whole seconds so archive names stay readable.
func GetExportResult(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) (schema.ExportResult, error) {
	if err := requireUser(cfg, "export"); err != nil {
		return schema.ExportResult{}, err
	}
	series := mgr.GetTimeSeries()
	if series == nil {
		return schema.ExportResult{}, errStoreNotInitialized
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	q := schema.TimeQuery{
		Field:   cfg.TimeField,
		StartTs: float64(cfg.StartTime.Unix()),
		EndTs:   float64(cfg.EndTime.Unix()),
	}
	prefix := archive.FileName(cfg.ArchiveDir, cfg.UserID, q.StartTs, q.EndTs)
	return archive.ExportQuery(ctx, cfg.UserID, series, q, prefix, archive.Options{Purge: cfg.Purge, Parquet: cfg.Parquet})
}

// GetScoreResults scores one user's sections in [StartTime, EndTime].
func GetScoreResults(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) (schema.ScoreReport, error) {
	if err := requireUser(cfg, "score"); err != nil {
		return schema.ScoreReport{}, err
	}
	if mgr.GetTimeSeries() == nil {
		return schema.ScoreReport{}, errStoreNotInitialized
	}
	return NewScoreEngine(cfg, mgr, cfg.UseCache).Score(ctx, cfg.UserID, cfg.StartTime, cfg.EndTime)
}

// GetSectionResults loads one user's sections that start in [StartTime, EndTime].
func GetSectionResults(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) ([]schema.Section, error) {
	if err := requireUser(cfg, "sections"); err != nil {
		return nil, err
	}
	series := mgr.GetTimeSeries()
	if series == nil {
		return nil, errStoreNotInitialized
	}
	return section.NewLoader(series).Load(ctx, cfg.UserID, cfg.StartTime, cfg.EndTime)
}
