// Package pipeline runs the per-user intake stages over watermark-bounded windows.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
)

// ResolveTimeRange returns the next window of a stage on the data timestamp axis.
// See resolveTimeRange for the rules.
func ResolveTimeRange(ctx context.Context, series contract.TimeSeries, user uuid.UUID, state schema.PipelineState, upstream *schema.PipelineState, now time.Time, lag time.Duration) (schema.TimeRange, error) {
	return resolveTimeRange(ctx, series, user, schema.TimeFieldData, state, upstream, now, lag)
}

// resolveTimeRange returns the window following the stage watermark.
//
// The window starts at the watermark, exclusive. A stage that never ran starts at the
// earliest entry, inclusive. The window ends lag before now and never passes the
// upstream watermark. ErrNoData means there is nothing new to process.
func resolveTimeRange(ctx context.Context, series contract.TimeSeries, user uuid.UUID, field schema.TimeField, state schema.PipelineState, upstream *schema.PipelineState, now time.Time, lag time.Duration) (schema.TimeRange, error) {
	var window schema.TimeRange

	if state.LastProcessedTs != nil {
		window.StartTs = *state.LastProcessedTs
	} else {
		earliest, ok, err := series.EarliestTs(ctx, user, field)
		if err != nil {
			return window, err
		}
		if !ok {
			return window, contract.ErrNoData
		}
		window.StartTs = earliest
		window.FirstRun = true
	}

	window.EndTs = schema.TimeToEpoch(now.Add(-lag))
	if upstream != nil {
		if upstream.LastProcessedTs == nil {
			return window, contract.ErrNoData
		}
		window.EndTs = min(window.EndTs, *upstream.LastProcessedTs)
	}

	if window.FirstRun && window.StartTs > window.EndTs {
		return window, contract.ErrNoData
	}
	if !window.FirstRun && window.StartTs >= window.EndTs {
		return window, contract.ErrNoData
	}
	return window, nil
}
