package schema

import (
	"time"

	"github.com/google/uuid"
)

// PipelineState is the per-user, per-stage watermark record.
// A nil LastProcessedTs means the stage has never completed for the user.
type PipelineState struct {
	UserID          uuid.UUID     `json:"user_id"`
	Stage           PipelineStage `json:"stage"`
	LastProcessedTs *float64      `json:"last_processed_ts"`
	LastRunID       int64         `json:"last_run_id"`
	LastRunStatus   RunStatus     `json:"last_run_status"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// WithWatermark returns a copy of the state advanced to ts by the given run.
func (s PipelineState) WithWatermark(ts float64, runID int64, at time.Time) PipelineState {
	next := s
	next.LastProcessedTs = &ts
	next.LastRunID = runID
	next.LastRunStatus = RunSuccess
	next.UpdatedAt = at
	return next
}

// PipelineRunRecord represents a row from the pipeline_runs table.
type PipelineRunRecord struct {
	RunID            int64         `json:"run_id"`
	UserID           uuid.UUID     `json:"user_id"`
	Stage            PipelineStage `json:"stage"`
	WindowStartTs    float64       `json:"window_start_ts"`
	WindowEndTs      float64       `json:"window_end_ts"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	Status           RunStatus     `json:"status"`
	EntriesProcessed int           `json:"entries_processed"`
	Error            *string       `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r PipelineRunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageOutcome summarizes one stage run for a user.
type StageOutcome struct {
	UserID    uuid.UUID     `json:"user_id"`
	Stage     PipelineStage `json:"stage"`
	Window    *TimeRange    `json:"window,omitempty"`
	Processed int           `json:"processed"`
	Skipped   bool          `json:"skipped"`
	Err       string        `json:"error,omitempty"`
}

// ExportResult describes an archive produced by the export stage.
type ExportResult struct {
	Path        string  `json:"path"`
	ParquetPath string  `json:"parquet_path,omitempty"`
	StartTs     float64 `json:"start_ts"`
	EndTs       float64 `json:"end_ts"`
	Entries     int     `json:"entries"`
	Purged      int     `json:"purged"`
	Reused      bool    `json:"reused,omitempty"`
}
