package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"golang.org/x/sync/errgroup"
)

// Runner executes stages for users, one run per (user, stage) at a time.
type Runner struct {
	series  contract.TimeSeries
	states  contract.PipelineStateStore
	stages  map[schema.PipelineStage]Stage
	logger  *slog.Logger
	field   schema.TimeField
	lag     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger for stage events.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithLag keeps windows this far behind the clock.
func WithLag(lag time.Duration) RunnerOption {
	return func(r *Runner) { r.lag = lag }
}

// WithTimeout bounds each stage run. Zero disables the bound.
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = timeout }
}

// WithTimeField selects the timestamp axis windows are cut on.
func WithTimeField(field schema.TimeField) RunnerOption {
	return func(r *Runner) { r.field = field }
}

// WithClock overrides the runner clock.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner returns a runner for the given stages.
func NewRunner(series contract.TimeSeries, states contract.PipelineStateStore, stages []Stage, opts ...RunnerOption) *Runner {
	r := &Runner{
		series:  series,
		states:  states,
		stages:  make(map[schema.PipelineStage]Stage, len(stages)),
		logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
		field:   schema.TimeFieldData,
		now:     time.Now,
		running: make(map[string]struct{}),
	}
	for _, s := range stages {
		r.stages[s.Name()] = s
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// tryLock claims (user, stage) for this process.
func (r *Runner) tryLock(user uuid.UUID, stage schema.PipelineStage) (func(), bool) {
	key := user.String() + "/" + string(stage)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[key]; busy {
		return nil, false
	}
	r.running[key] = struct{}{}
	return func() {
		r.mu.Lock()
		delete(r.running, key)
		r.mu.Unlock()
	}, true
}

// RunStage runs one stage for user starting from state and returns the next state.
// The watermark only moves after the stage succeeded, and only if no other run moved it first.
// ErrNoData is returned with the state unchanged when there is nothing to process.
func (r *Runner) RunStage(ctx context.Context, user uuid.UUID, name schema.PipelineStage, state schema.PipelineState) (schema.PipelineState, schema.StageOutcome, error) {
	outcome := schema.StageOutcome{UserID: user, Stage: name}

	stage, ok := r.stages[name]
	if !ok {
		return state, outcome, fmt.Errorf("stage %s is not configured", name)
	}

	unlock, ok := r.tryLock(user, name)
	if !ok {
		return state, outcome, contract.ErrStageRunning
	}
	defer unlock()

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var upstream *schema.PipelineState
	if upName, ok := stage.Upstream(); ok {
		up, err := r.states.GetState(runCtx, user, upName)
		if err != nil {
			return state, outcome, fmt.Errorf("failed to read %s state: %w", upName, err)
		}
		upstream = &up
	}

	window, err := resolveTimeRange(runCtx, r.series, user, r.field, state, upstream, r.now(), r.lag)
	if errors.Is(err, contract.ErrNoData) {
		outcome.Skipped = true
		r.logger.Debug("stage skipped", "user", user, "stage", name)
		return state, outcome, err
	}
	if err != nil {
		return state, outcome, fmt.Errorf("failed to resolve %s window: %w", name, err)
	}
	outcome.Window = &window

	runID, err := r.states.BeginRun(runCtx, user, name, window)
	if err != nil {
		return state, outcome, fmt.Errorf("failed to record %s run: %w", name, err)
	}
	logger := r.logger.With("user", user, "stage", name, "run_id", runID)
	logger.Info("stage started", "start_ts", window.StartTs, "end_ts", window.EndTs, "first_run", window.FirstRun)

	processed, err := stage.Run(runCtx, user, window.Query(r.field))
	outcome.Processed = processed
	if err != nil {
		runErr := r.fail(ctx, logger, runID, processed, &outcome, fmt.Errorf("stage %s failed: %w", name, err))
		return state, outcome, runErr
	}

	advanced, err := r.states.AdvanceWatermark(runCtx, user, name, state.LastProcessedTs, window.EndTs, runID)
	if err != nil {
		runErr := r.fail(ctx, logger, runID, processed, &outcome, fmt.Errorf("failed to advance %s watermark: %w", name, err))
		return state, outcome, runErr
	}
	if !advanced {
		runErr := r.fail(ctx, logger, runID, processed, &outcome, contract.ErrWatermarkConflict)
		return state, outcome, runErr
	}

	if err := r.states.EndRun(context.WithoutCancel(ctx), runID, schema.RunSuccess, processed, nil); err != nil {
		logger.Warn("failed to record run success", "error", err)
	}
	logger.Info("stage finished", "processed", processed, "watermark", window.EndTs)
	return state.WithWatermark(window.EndTs, runID, r.now()), outcome, nil
}

// fail marks the run failed and returns runErr with the outcome updated.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, runID int64, processed int, outcome *schema.StageOutcome, runErr error) error {
	outcome.Err = runErr.Error()
	if err := r.states.EndRun(context.WithoutCancel(ctx), runID, schema.RunFailed, processed, runErr); err != nil {
		logger.Warn("failed to record run failure", "error", err)
	}
	logger.Error("stage failed", "error", runErr, "retryable", contract.IsRetryable(runErr))
	return runErr
}

// RunUser runs the requested stages for one user in pipeline order.
// A failed stage does not stop the later ones since they are capped by upstream watermarks.
func (r *Runner) RunUser(ctx context.Context, user uuid.UUID, stages []schema.PipelineStage) ([]schema.StageOutcome, error) {
	requested := make(map[schema.PipelineStage]struct{}, len(stages))
	for _, s := range stages {
		requested[s] = struct{}{}
	}

	var outcomes []schema.StageOutcome
	var errs []error
	for _, name := range schema.AllStages {
		if _, ok := requested[name]; !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		state, err := r.states.GetState(ctx, user, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read %s state for user %s: %w", name, user, err))
			outcomes = append(outcomes, schema.StageOutcome{UserID: user, Stage: name, Err: err.Error()})
			continue
		}
		_, outcome, err := r.RunStage(ctx, user, name, state)
		if err != nil && !errors.Is(err, contract.ErrNoData) {
			if outcome.Err == "" {
				outcome.Err = err.Error()
			}
			errs = append(errs, fmt.Errorf("user %s: %w", user, err))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, errors.Join(errs...)
}

// RunUsers runs the stages for many users with at most workers in parallel.
// Every user is attempted; the returned error joins the failures.
func (r *Runner) RunUsers(ctx context.Context, users []uuid.UUID, stages []schema.PipelineStage, workers int) ([]schema.StageOutcome, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([][]schema.StageOutcome, len(users))
	errs := make([]error, len(users))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, user := range users {
		g.Go(func() error {
			results[i], errs[i] = r.RunUser(ctx, user, stages)
			return nil
		})
	}
	_ = g.Wait()

	var outcomes []schema.StageOutcome
	for _, res := range results {
		outcomes = append(outcomes, res...)
	}
	return outcomes, errors.Join(errs...)
}
