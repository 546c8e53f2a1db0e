package iostore

import (
	"fmt"
	"maps"
	"slices"

	"github.com/jiji14/e-mission-server/schema"
)

// PrintCacheStatus prints cache status information.
func PrintCacheStatus(status schema.CacheStatus) {
	fmt.Printf("Cache Backend: %s\n", status.Backend)
	fmt.Printf("Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	fmt.Printf("Total Entries: %d\n", status.TotalEntries)
	if status.TotalEntries > 0 {
		fmt.Printf("Last Entry: %s\n", status.LastEntryTime.Format("2006-01-02 15:04:05"))
		fmt.Printf("Oldest Entry: %s\n", status.OldestEntryTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Table Size: %d bytes\n", status.TableSizeBytes)
}

// PrintStoreStatus prints time series store status information.
func PrintStoreStatus(status schema.StoreStatus) {
	fmt.Printf("Store Backend: %s\n", status.Backend)
	fmt.Printf("Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	fmt.Printf("Database: %s\n", status.Database)
	fmt.Printf("Schema Version: %d\n", status.SchemaVersion)
	fmt.Printf("Total Entries: %d\n", status.TotalEntries)
	fmt.Printf("Total Users: %d\n", status.TotalUsers)
	if status.TotalEntries > 0 {
		fmt.Printf("Oldest Write: %s\n", schema.EpochToTime(status.OldestWriteTs).Format("2006-01-02 15:04:05"))
		fmt.Printf("Last Write: %s\n", schema.EpochToTime(status.LastWriteTs).Format("2006-01-02 15:04:05"))
		fmt.Println("Entries by Key:")
		for _, key := range slices.Sorted(maps.Keys(status.KeyCounts)) {
			fmt.Printf("  %s: %d\n", key, status.KeyCounts[key])
		}
	}
	fmt.Println("Table Sizes:")
	for _, table := range slices.Sorted(maps.Keys(status.TableSizes)) {
		fmt.Printf("  %s: %d rows\n", table, status.TableSizes[table])
	}
}
