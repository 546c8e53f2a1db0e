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

// componentRow is the CSV layout of one score component.
type componentRow struct {
	UserID    string `csv:"user_id"`
	StartTime string `csv:"start_time"`
	EndTime   string `csv:"end_time"`
	Index     int    `csv:"index"`
	Component string `csv:"component"`
	Value     string `csv:"value"`
	Label     string `csv:"label"`
}

// labelFunc picks colored labels for terminals unless colors are disabled.
func labelFunc(cfg *contract.Config) func(float64) string {
	if cfg.UseColors {
		return contract.GetColorLabel
	}
	return contract.GetPlainLabel
}

// WriteScore outputs a score report, dispatching based on the output format configured.
func WriteScore(report schema.ScoreReport, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, _ := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeScoreJSON(w, report)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVRows(w, scoreCSVRows(report, fmtFloat))
		}, "Wrote CSV")
	case schema.ParquetOut:
		return writeParquetFile(cfg.OutputFile, parquet.ConvertScores([]schema.ScoreReport{report}))
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeScoreTable(report, cfg, fmtFloat, duration, w)
		}, "Wrote table")
	}
}

// writeScoreJSON writes the report with named, labeled components.
func writeScoreJSON(w io.Writer, report schema.ScoreReport) error {
	output := struct {
		schema.ScoreReport
		Breakdown []schema.EnrichedComponent `json:"breakdown"`
	}{
		ScoreReport: report,
		Breakdown:   schema.EnrichComponents(report, contract.GetPlainLabel),
	}
	return writeJSON(w, output)
}

// scoreCSVRows flattens a report into one row per component.
func scoreCSVRows(report schema.ScoreReport, fmtFloat func(float64) string) []componentRow {
	start := schema.EpochToTime(report.StartTs).Format(contract.DateTimeFormat)
	end := schema.EpochToTime(report.EndTs).Format(contract.DateTimeFormat)
	rows := make([]componentRow, 0, len(report.Components))
	for _, c := range schema.EnrichComponents(report, contract.GetPlainLabel) {
		rows = append(rows, componentRow{
			UserID:    report.UserID.String(),
			StartTime: start,
			EndTime:   end,
			Index:     c.Index,
			Component: c.Name,
			Value:     fmtFloat(c.Value),
			Label:     c.Label,
		})
	}
	return rows
}

// writeScoreTable generates and writes the human-readable table.
func writeScoreTable(report schema.ScoreReport, cfg *contract.Config, fmtFloat func(float64) string, duration time.Duration, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)
	table.Header([]string{"#", "Component", "Value", "Label"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, c := range schema.EnrichComponents(report, labelFunc(cfg)) {
		data = append(data, []string{
			strconv.Itoa(c.Index),
			c.Name,
			fmtFloat(c.Value),
			c.Label,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(writer, "Sections: %d (relevant: %d, confirmed: %d)\n", report.SectionCount, report.Relevant, report.Confirmed); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Footprint kg CO2: actual %s, optimal %s, all-drive %s, goal %s\n",
		fmtFloat(report.ActualKg), fmtFloat(report.OptimalKg), fmtFloat(report.AllDriveKg), fmtFloat(report.GoalKg)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer, "Scored in %v. Cache backend: %s\n", duration, cfg.CacheBackend); err != nil {
		return err
	}
	return nil
}
