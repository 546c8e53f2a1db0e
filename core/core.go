// Package core wires the stores, the pipeline and the scoring engine behind each command.
package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/outwriter"
)

// ExecutorFunc defines the function signature for executing the different commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error

// ExecutePipelineRun runs the selected stages for the selected users and prints one row per stage run.
// Outcomes are printed even when some runs failed; the joined error is returned afterwards.
func ExecutePipelineRun(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	start := time.Now()
	if !shouldSuppressHeader(ctx) {
		outwriter.LogPipelineHeader(cfg)
	}
	outcomes, runErr := GetPipelineResults(ctx, cfg, mgr)
	if outcomes == nil && runErr != nil {
		return runErr
	}
	if err := outwriter.WriteOutcomes(outcomes, cfg, time.Since(start)); err != nil {
		return err
	}
	return runErr
}

// ExecutePipelineState prints the watermark of every selected stage.
func ExecutePipelineState(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	states, err := GetPipelineStates(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return outwriter.WriteStates(states, cfg)
}

// ExecutePipelineReset forgets the watermarks of the selected stages for one user.
func ExecutePipelineReset(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	if err := requireUser(cfg, "pipeline reset"); err != nil {
		return err
	}
	states := mgr.GetStateStore()
	if states == nil {
		return errStoreNotInitialized
	}
	for _, stage := range cfg.Stages {
		if err := states.ResetState(ctx, cfg.UserID, stage); err != nil {
			return fmt.Errorf("failed to reset %s: %w", stage, err)
		}
		outwriter.LogReset(cfg.UserID, stage)
	}
	return nil
}

// ExecutePipelineRuns prints the recorded run history.
func ExecutePipelineRuns(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	runs, err := GetPipelineRuns(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return outwriter.WriteRuns(runs, cfg)
}

// ExecuteExport archives one user's entries inside the configured time range.
func ExecuteExport(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	start := time.Now()
	if !shouldSuppressHeader(ctx) {
		outwriter.LogRangeHeader("Export", cfg)
	}
	result, err := GetExportResult(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return outwriter.WriteExport(result, cfg, time.Since(start))
}

// ExecuteScore computes the footprint score components for one user.
func ExecuteScore(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	start := time.Now()
	if !shouldSuppressHeader(ctx) {
		outwriter.LogRangeHeader("Score", cfg)
	}
	report, err := GetScoreResults(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return outwriter.WriteScore(report, cfg, time.Since(start))
}

// ExecuteSections lists one user's sections with their latest confirmations.
func ExecuteSections(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager) error {
	if !shouldSuppressHeader(ctx) {
		outwriter.LogRangeHeader("Sections", cfg)
	}
	sections, err := GetSectionResults(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return outwriter.WriteSections(sections, cfg)
}

// ExecuteStoreLoad loads a fixture or archive file into the store.
func ExecuteStoreLoad(ctx context.Context, cfg *contract.Config, mgr contract.StoreManager, path string) error {
	series := mgr.GetTimeSeries()
	if series == nil {
		return errStoreNotInitialized
	}
	n, err := LoadEntries(ctx, series, path, cfg.UserID)
	if err != nil {
		return err
	}
	outwriter.LogLoaded(n, path, cfg.UserID)
	return nil
}

// ExecuteStoreRebind moves entries from one user to another.
func ExecuteStoreRebind(ctx context.Context, mgr contract.StoreManager, from, to uuid.UUID, keys []string) error {
	if from == uuid.Nil || to == uuid.Nil {
		return errors.New("--from and --to are both required for store rebind")
	}
	if from == to {
		return errors.New("--from and --to must name different users")
	}
	series := mgr.GetTimeSeries()
	if series == nil {
		return errStoreNotInitialized
	}
	n, err := series.RebindUser(ctx, from, to, keys)
	if err != nil {
		return fmt.Errorf("failed to rebind entries: %w", err)
	}
	outwriter.LogRebound(n, from, to)
	return nil
}

// errStoreNotInitialized is returned when a command runs before InitStores.
var errStoreNotInitialized = errors.New("store is not initialized")

// requireUser checks that a single user was selected for a per-user command.
func requireUser(cfg *contract.Config, command string) error {
	if cfg.UserID == uuid.Nil {
		return fmt.Errorf("--user is required for %s", command)
	}
	return nil
}

// resolveUsers returns the configured user, or every user in the store.
func resolveUsers(ctx context.Context, cfg *contract.Config, series contract.TimeSeries) ([]uuid.UUID, error) {
	if cfg.UserID != uuid.Nil {
		return []uuid.UUID{cfg.UserID}, nil
	}
	users, err := series.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	slices.SortFunc(users, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return users, nil
}
