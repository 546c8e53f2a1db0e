// Package parquet provides data structures and functions for exporting pipeline
// runs, entries, sections and scores to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jiji14/e-mission-server/schema"
	"github.com/parquet-go/parquet-go"
)

// PipelineRun represents a single stage run.
// This struct maps to the pipeline_runs database table.
type PipelineRun struct {
	// RunID is the unique identifier for this run
	RunID int64 `parquet:"run_id,snappy"`

	// UserID is the dashed UUID of the user
	UserID string `parquet:"user_id,snappy"`

	// Stage is the pipeline stage name
	Stage string `parquet:"stage,snappy"`

	// WindowStartTs and WindowEndTs bound the processed window in epoch seconds
	WindowStartTs float64 `parquet:"window_start_ts,snappy"`
	WindowEndTs   float64 `parquet:"window_end_ts,snappy"`

	// StartedAt is when the run began (stored as TIMESTAMP with nanosecond precision)
	StartedAt time.Time `parquet:"started_at,snappy"`

	// FinishedAt is when the run completed (nullable)
	FinishedAt *time.Time `parquet:"finished_at,optional,snappy"`

	// DurationMs is the run duration in milliseconds (nullable)
	DurationMs *int64 `parquet:"duration_ms,optional,snappy"`

	Status           string  `parquet:"status,snappy"`
	EntriesProcessed int32   `parquet:"entries_processed,snappy"`
	Error            *string `parquet:"error,optional,snappy"`
}

// Entry is a flattened time series entry.
type Entry struct {
	ID        string  `parquet:"_id,snappy"`
	UserID    string  `parquet:"user_id,snappy"`
	Key       string  `parquet:"metadata_key,snappy"`
	WriteTs   float64 `parquet:"write_ts,snappy"`
	DataTs    float64 `parquet:"data_ts,snappy"`
	DataEndTs float64 `parquet:"data_end_ts,snappy"`
	Platform  *string `parquet:"platform,optional,snappy"`
	TimeZone  *string `parquet:"time_zone,optional,snappy"`
	Data      string  `parquet:"data_json,snappy"`
}

// Section is a flattened section with its effective mode.
type Section struct {
	UserID        string    `parquet:"user_id,snappy"`
	TripID        string    `parquet:"trip_id,snappy"`
	SectionID     string    `parquet:"section_id,snappy"`
	Start         time.Time `parquet:"start,snappy"`
	End           time.Time `parquet:"end,snappy"`
	ConfirmedMode *string   `parquet:"confirmed_mode,optional,snappy"`
	Distance      float64   `parquet:"distance,snappy"`
	Duration      float64   `parquet:"duration,snappy"`
	AutoConfirmed bool      `parquet:"auto_confirmed,snappy"`
}

// Score holds one score report with its components as columns.
type Score struct {
	UserID       string  `parquet:"user_id,snappy"`
	StartTs      float64 `parquet:"start_ts,snappy"`
	EndTs        float64 `parquet:"end_ts,snappy"`
	Coverage     float64 `parquet:"confirmation_coverage,snappy"`
	VsOptimal    float64 `parquet:"savings_vs_optimal,snappy"`
	VsAllDrive   float64 `parquet:"savings_vs_all_drive,snappy"`
	VsGoal       float64 `parquet:"progress_vs_goal,snappy"`
	SectionCount int32   `parquet:"section_count,snappy"`
	ActualKg     float64 `parquet:"actual_kg,snappy"`
	OptimalKg    float64 `parquet:"optimal_kg,snappy"`
	AllDriveKg   float64 `parquet:"all_drive_kg,snappy"`
	GoalKg       float64 `parquet:"goal_kg,snappy"`
}

// Write writes rows of T to w using struct schema inference.
func Write[T any](w io.Writer, data []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// WriteFile writes rows of T to a new Parquet file at outputPath.
func WriteFile[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := Write(file, data); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// ConvertRunRecords converts schema.PipelineRunRecord to PipelineRun for Parquet export.
func ConvertRunRecords(records []schema.PipelineRunRecord) []PipelineRun {
	result := make([]PipelineRun, len(records))
	for i, record := range records {
		row := PipelineRun{
			RunID:            record.RunID,
			UserID:           record.UserID.String(),
			Stage:            string(record.Stage),
			WindowStartTs:    record.WindowStartTs,
			WindowEndTs:      record.WindowEndTs,
			StartedAt:        record.StartedAt,
			FinishedAt:       record.FinishedAt,
			Status:           string(record.Status),
			EntriesProcessed: int32(record.EntriesProcessed),
			Error:            record.Error,
		}
		if record.FinishedAt != nil {
			ms := record.Duration().Milliseconds()
			row.DurationMs = &ms
		}
		result[i] = row
	}
	return result
}

// ConvertEntries flattens entries for Parquet export.
func ConvertEntries(entries []schema.Entry) []Entry {
	result := make([]Entry, len(entries))
	for i, e := range entries {
		result[i] = Entry{
			ID:        e.ID.Hex(),
			UserID:    e.UserID.String(),
			Key:       e.Metadata.Key,
			WriteTs:   e.Metadata.WriteTs,
			DataTs:    e.DataTs,
			DataEndTs: e.DataEndTs,
			Platform:  optional(e.Metadata.Platform),
			TimeZone:  optional(e.Metadata.TimeZone),
			Data:      string(e.Data),
		}
	}
	return result
}

// ConvertSections flattens sections for Parquet export.
func ConvertSections(sections []schema.Section) []Section {
	result := make([]Section, len(sections))
	for i, s := range sections {
		result[i] = Section{
			UserID:        s.UserID.String(),
			TripID:        s.TripID,
			SectionID:     s.SectionID,
			Start:         s.Start,
			End:           s.End,
			ConfirmedMode: optional(string(s.ConfirmedMode)),
			Distance:      s.Distance,
			Duration:      s.Duration,
			AutoConfirmed: s.AutoConfirmed,
		}
	}
	return result
}

// ConvertScores flattens score reports for Parquet export.
func ConvertScores(reports []schema.ScoreReport) []Score {
	result := make([]Score, len(reports))
	for i, r := range reports {
		row := Score{
			UserID:       r.UserID.String(),
			StartTs:      r.StartTs,
			EndTs:        r.EndTs,
			SectionCount: int32(r.SectionCount),
			ActualKg:     r.ActualKg,
			OptimalKg:    r.OptimalKg,
			AllDriveKg:   r.AllDriveKg,
			GoalKg:       r.GoalKg,
		}
		if len(r.Components) == schema.NumComponents {
			row.Coverage = r.Components[schema.ComponentCoverage]
			row.VsOptimal = r.Components[schema.ComponentOptimal]
			row.VsAllDrive = r.Components[schema.ComponentAllDrive]
			row.VsGoal = r.Components[schema.ComponentGoal]
		}
		result[i] = row
	}
	return result
}

// optional returns nil for an empty string.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
