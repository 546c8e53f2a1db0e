package outwriter

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/parquet"
	"github.com/jiji14/e-mission-server/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// sectionRow is the CSV layout of one section.
type sectionRow struct {
	Rank          int    `csv:"rank"`
	EntryID       string `csv:"entry_id"`
	TripID        string `csv:"trip_id"`
	SectionID     string `csv:"section_id"`
	Start         string `csv:"section_start_datetime"`
	End           string `csv:"section_end_datetime"`
	ConfirmedMode string `csv:"confirmed_mode"`
	Distance      string `csv:"distance_m"`
	Duration      string `csv:"duration_s"`
	AutoConfirmed bool   `csv:"auto_confirmed"`
}

// modeLabel renders an unconfirmed mode as a dash.
func modeLabel(m schema.Mode) string {
	if !m.IsConfirmed() {
		return "-"
	}
	return string(m)
}

// WriteSections outputs sections, dispatching based on the output format configured.
func WriteSections(sections []schema.Section, cfg *contract.Config) error {
	fmtFloat, _ := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, schema.EnrichSections(sections))
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVRows(w, sectionCSVRows(sections, fmtFloat))
		}, "Wrote CSV")
	case schema.ParquetOut:
		return writeParquetFile(cfg.OutputFile, parquet.ConvertSections(sections))
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSectionsTable(sections, cfg, fmtFloat, w)
		}, "Wrote table")
	}
}

// sectionCSVRows flattens sections into CSV rows in their current order.
func sectionCSVRows(sections []schema.Section, fmtFloat func(float64) string) []sectionRow {
	rows := make([]sectionRow, len(sections))
	for i, s := range sections {
		rows[i] = sectionRow{
			Rank:          i + 1,
			EntryID:       s.EntryID.Hex(),
			TripID:        s.TripID,
			SectionID:     s.SectionID,
			Start:         s.Start.Format(contract.DateTimeFormat),
			End:           s.End.Format(contract.DateTimeFormat),
			ConfirmedMode: string(s.ConfirmedMode),
			Distance:      fmtFloat(s.Distance),
			Duration:      fmtFloat(s.Duration),
			AutoConfirmed: s.AutoConfirmed,
		}
	}
	return rows
}

// writeSectionsTable generates and writes the human-readable table.
func writeSectionsTable(sections []schema.Section, cfg *contract.Config, fmtFloat func(float64) string, writer io.Writer) error {
	table := tablewriter.NewWriter(writer)
	table.Header([]string{"Rank", "Trip", "Section", "Start", "Mode", "Distance (m)", "Duration (s)", "Auto"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	idWidth := getMaxTableIDWidth(cfg)
	var data [][]string
	var totalDistance float64
	confirmed := 0
	for i, s := range sections {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			contract.TruncateID(s.TripID, idWidth),
			contract.TruncateID(s.SectionID, idWidth),
			s.Start.Format(contract.DateTimeFormat),
			modeLabel(s.ConfirmedMode),
			fmtFloat(s.Distance),
			fmtFloat(s.Duration),
			strconv.FormatBool(s.AutoConfirmed),
		})
		totalDistance += s.Distance
		if s.IsConfirmed() {
			confirmed++
		}
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(writer, "Showing %d sections (confirmed: %d, total distance: %s m)\n", len(sections), confirmed, fmtFloat(totalDistance))
	return err
}
