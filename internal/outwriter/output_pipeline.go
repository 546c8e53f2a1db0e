package outwriter

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/parquet"
	"github.com/jiji14/e-mission-server/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Outcome statuses shown for stage runs.
const (
	outcomeOK      = "ok"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// outcomeRow is the CSV layout of one stage outcome.
type outcomeRow struct {
	UserID    string `csv:"user_id"`
	Stage     string `csv:"stage"`
	StartTs   string `csv:"window_start_ts"`
	EndTs     string `csv:"window_end_ts"`
	Processed int    `csv:"processed"`
	Status    string `csv:"status"`
	Error     string `csv:"error"`
}

// stateRow is the CSV layout of one pipeline state.
type stateRow struct {
	UserID          string `csv:"user_id"`
	Stage           string `csv:"stage"`
	LastProcessedTs string `csv:"last_processed_ts"`
	LastRunID       int64  `csv:"last_run_id"`
	LastRunStatus   string `csv:"last_run_status"`
	UpdatedAt       string `csv:"updated_at"`
}

// runRow is the CSV layout of one recorded run.
type runRow struct {
	RunID      int64  `csv:"run_id"`
	UserID     string `csv:"user_id"`
	Stage      string `csv:"stage"`
	StartTs    string `csv:"window_start_ts"`
	EndTs      string `csv:"window_end_ts"`
	StartedAt  string `csv:"started_at"`
	DurationMs int64  `csv:"duration_ms"`
	Status     string `csv:"status"`
	Entries    int    `csv:"entries_processed"`
	Error      string `csv:"error"`
}

// exportRow is the CSV layout of an export result.
type exportRow struct {
	Path        string `csv:"path"`
	ParquetPath string `csv:"parquet_path"`
	StartTs     string `csv:"start_ts"`
	EndTs       string `csv:"end_ts"`
	Entries     int    `csv:"entries"`
	Purged      int    `csv:"purged"`
}

// outcomeStatus summarizes an outcome in one word.
func outcomeStatus(o schema.StageOutcome) string {
	switch {
	case o.Err != "":
		return outcomeFailed
	case o.Skipped:
		return outcomeSkipped
	default:
		return outcomeOK
	}
}

// formatTs renders an epoch timestamp, or a dash when there is none.
func formatTs(ts *float64) string {
	if ts == nil {
		return "-"
	}
	return schema.EpochToTime(*ts).Format(contract.DateTimeFormat)
}

// WriteOutcomes outputs pipeline outcomes, dispatching based on the output format configured.
func WriteOutcomes(outcomes []schema.StageOutcome, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, outcomes)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVRows(w, outcomeCSVRows(outcomes))
		}, "Wrote CSV")
	case schema.ParquetOut:
		return fmt.Errorf("parquet output is not supported for pipeline run; use 'pipeline runs' or 'store export-runs'")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeOutcomesTable(outcomes, cfg, duration, w)
		}, "Wrote table")
	}
}

func outcomeCSVRows(outcomes []schema.StageOutcome) []outcomeRow {
	rows := make([]outcomeRow, len(outcomes))
	for i, o := range outcomes {
		row := outcomeRow{
			UserID:    o.UserID.String(),
			Stage:     string(o.Stage),
			Processed: o.Processed,
			Status:    outcomeStatus(o),
			Error:     o.Err,
		}
		if o.Window != nil {
			row.StartTs = strconv.FormatFloat(o.Window.StartTs, 'f', -1, 64)
			row.EndTs = strconv.FormatFloat(o.Window.EndTs, 'f', -1, 64)
		}
		rows[i] = row
	}
	return rows
}

// writeOutcomesTable generates and writes the human-readable table.
func writeOutcomesTable(outcomes []schema.StageOutcome, cfg *contract.Config, duration time.Duration, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)
	table.Header([]string{"User", "Stage", "Window Start", "Window End", "Processed", "Status", "Error"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	counts := map[string]int{}
	var data [][]string
	for _, o := range outcomes {
		start, end := "-", "-"
		if o.Window != nil {
			start = formatTs(&o.Window.StartTs)
			end = formatTs(&o.Window.EndTs)
		}
		status := outcomeStatus(o)
		counts[status]++
		data = append(data, []string{
			o.UserID.String(),
			string(o.Stage),
			start,
			end,
			strconv.Itoa(o.Processed),
			status,
			contract.TruncateID(o.Err, 40),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Stage runs: %d ok, %d skipped, %d failed\n", counts[outcomeOK], counts[outcomeSkipped], counts[outcomeFailed]); err != nil {
		return err
	}
	_, err := fmt.Fprintf(writer, "Pipeline completed in %v with %d workers. Store backend: %s\n", duration, cfg.Workers, cfg.Backend)
	return err
}

// WriteStates outputs pipeline states, dispatching based on the output format configured.
func WriteStates(states []schema.PipelineState, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, states)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVRows(w, stateCSVRows(states))
		}, "Wrote CSV")
	case schema.ParquetOut:
		return fmt.Errorf("parquet output is not supported for pipeline state")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeStatesTable(states, w)
		}, "Wrote table")
	}
}

func stateCSVRows(states []schema.PipelineState) []stateRow {
	rows := make([]stateRow, len(states))
	for i, s := range states {
		row := stateRow{
			UserID:        s.UserID.String(),
			Stage:         string(s.Stage),
			LastRunID:     s.LastRunID,
			LastRunStatus: string(s.LastRunStatus),
		}
		if s.LastProcessedTs != nil {
			row.LastProcessedTs = strconv.FormatFloat(*s.LastProcessedTs, 'f', -1, 64)
		}
		if !s.UpdatedAt.IsZero() {
			row.UpdatedAt = s.UpdatedAt.Format(contract.DateTimeFormat)
		}
		rows[i] = row
	}
	return rows
}

func writeStatesTable(states []schema.PipelineState, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)
	table.Header([]string{"User", "Stage", "Watermark", "Last Run", "Status", "Updated"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, s := range states {
		lastRun, status, updated := "-", "-", "-"
		if s.LastRunID > 0 {
			lastRun = strconv.FormatInt(s.LastRunID, 10)
		}
		if s.LastRunStatus != "" {
			status = string(s.LastRunStatus)
		}
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Format(contract.DateTimeFormat)
		}
		data = append(data, []string{
			s.UserID.String(),
			string(s.Stage),
			formatTs(s.LastProcessedTs),
			lastRun,
			status,
			updated,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// WriteRuns outputs recorded runs, dispatching based on the output format configured.
func WriteRuns(runs []schema.PipelineRunRecord, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, runs)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVRows(w, runCSVRows(runs))
		}, "Wrote CSV")
	case schema.ParquetOut:
		return writeParquetFile(cfg.OutputFile, parquet.ConvertRunRecords(runs))
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeRunsTable(runs, w)
		}, "Wrote table")
	}
}

func runCSVRows(runs []schema.PipelineRunRecord) []runRow {
	rows := make([]runRow, len(runs))
	for i, r := range runs {
		row := runRow{
			RunID:      r.RunID,
			UserID:     r.UserID.String(),
			Stage:      string(r.Stage),
			StartTs:    strconv.FormatFloat(r.WindowStartTs, 'f', -1, 64),
			EndTs:      strconv.FormatFloat(r.WindowEndTs, 'f', -1, 64),
			StartedAt:  r.StartedAt.Format(contract.DateTimeFormat),
			DurationMs: r.Duration().Milliseconds(),
			Status:     string(r.Status),
			Entries:    r.EntriesProcessed,
		}
		if r.Error != nil {
			row.Error = *r.Error
		}
		rows[i] = row
	}
	return rows
}

func writeRunsTable(runs []schema.PipelineRunRecord, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)
	table.Header([]string{"Run", "User", "Stage", "Window Start", "Window End", "Status", "Entries", "Duration", "Error"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, r := range runs {
		errText := ""
		if r.Error != nil {
			errText = contract.TruncateID(*r.Error, 40)
		}
		data = append(data, []string{
			strconv.FormatInt(r.RunID, 10),
			r.UserID.String(),
			string(r.Stage),
			formatTs(&r.WindowStartTs),
			formatTs(&r.WindowEndTs),
			string(r.Status),
			strconv.Itoa(r.EntriesProcessed),
			r.Duration().Round(time.Millisecond).String(),
			errText,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(writer, "Showing %d pipeline runs\n", len(runs))
	return err
}

// WriteExport reports a written archive.
func WriteExport(result schema.ExportResult, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, result)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVRows(w, []exportRow{{
				Path:        result.Path,
				ParquetPath: result.ParquetPath,
				StartTs:     strconv.FormatFloat(result.StartTs, 'f', -1, 64),
				EndTs:       strconv.FormatFloat(result.EndTs, 'f', -1, 64),
				Entries:     result.Entries,
				Purged:      result.Purged,
			}})
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeExportSummary(result, duration, w)
		}, "Wrote summary")
	}
}

func writeExportSummary(result schema.ExportResult, duration time.Duration, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "📦 Archived %d entries to %s\n", result.Entries, result.Path); err != nil {
		return err
	}
	if result.Reused {
		if _, err := fmt.Fprintln(w, "♻️  Archive already held every entry; left unchanged"); err != nil {
			return err
		}
	}
	if result.ParquetPath != "" {
		if _, err := fmt.Fprintf(w, "🧱 Parquet sidecar: %s\n", result.ParquetPath); err != nil {
			return err
		}
	}
	if result.Purged > 0 {
		if _, err := fmt.Fprintf(w, "🧹 Purged %d entries from the store\n", result.Purged); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Export completed in %v\n", duration)
	return err
}
