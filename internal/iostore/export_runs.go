package iostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/parquet"
)

// ExecuteRunsExport writes the recorded pipeline runs to a Parquet file.
func ExecuteRunsExport(ctx context.Context, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export-runs command")
	}

	store := Manager.GetSQLStore()
	if store == nil {
		return errors.New("store is not initialized")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get store status: %w", err)
	}
	if status.TableSizes[runsTable] == 0 {
		return errors.New("no pipeline runs found to export")
	}

	fmt.Printf("Exporting data from %s backend...\n", status.Backend)
	fmt.Printf("Total pipeline runs: %d\n", status.TableSizes[runsTable])

	runs, err := store.ListRuns(ctx, uuid.Nil)
	if err != nil {
		return fmt.Errorf("failed to retrieve pipeline runs: %w", err)
	}

	rows := parquet.ConvertRunRecords(runs)
	runsFile := outputFile + ".pipeline_runs.parquet"
	if err := parquet.WriteFile(rows, runsFile); err != nil {
		return fmt.Errorf("failed to write pipeline runs: %w", err)
	}
	fmt.Printf("Exported %d pipeline runs to: %s\n", len(rows), runsFile)

	fmt.Println("\nExport complete! The Parquet file can be used with:")
	fmt.Println("  - Apache Spark")
	fmt.Println("  - Pandas (via pyarrow)")
	fmt.Println("  - DuckDB")
	return nil
}
