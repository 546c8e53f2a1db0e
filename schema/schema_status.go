package schema

import "time"

// CacheStatus represents the status of the score cache.
type CacheStatus struct {
	Backend         string    `json:"backend"`
	Connected       bool      `json:"connected"`
	TotalEntries    int       `json:"total_entries"`
	LastEntryTime   time.Time `json:"last_entry_time"`
	OldestEntryTime time.Time `json:"oldest_entry_time"`
	TableSizeBytes  int64     `json:"table_size_bytes"`
}

// StoreStatus represents the status of the time series store.
type StoreStatus struct {
	Backend       string           `json:"backend"`
	Connected     bool             `json:"connected"`
	Database      string           `json:"database"`
	SchemaVersion uint             `json:"schema_version"`
	TotalEntries  int64            `json:"total_entries"`
	TotalUsers    int64            `json:"total_users"`
	OldestWriteTs float64          `json:"oldest_write_ts"`
	LastWriteTs   float64          `json:"last_write_ts"`
	KeyCounts     map[string]int64 `json:"key_counts"`
	TableSizes    map[string]int64 `json:"table_sizes"`
}
