// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/schema"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TimeSeries defines the append-only, per-user entry store.
// All reads and writes are scoped by user id.
type TimeSeries interface {
	// InsertEntries appends entries. Every entry must carry an id and a user id.
	InsertEntries(ctx context.Context, entries ...schema.Entry) error

	// FindEntries returns entries matching keys (all keys when empty) ordered by
	// the query axis ascending, ties broken by insertion order.
	// A nil query returns every matching entry ordered by data timestamp.
	FindEntries(ctx context.Context, user uuid.UUID, keys []string, q *schema.TimeQuery) ([]schema.Entry, error)

	// EarliestTs returns the smallest timestamp on the axis, false if the user has no entries.
	EarliestTs(ctx context.Context, user uuid.UUID, field schema.TimeField) (float64, bool, error)

	// CountEntries counts entries matching keys (all keys when empty).
	CountEntries(ctx context.Context, user uuid.UUID, keys []string) (int, error)

	// DeleteEntries removes the given entries and returns how many were deleted.
	DeleteEntries(ctx context.Context, user uuid.UUID, ids []primitive.ObjectID) (int, error)

	// ListUsers returns every user that owns at least one entry.
	ListUsers(ctx context.Context) ([]uuid.UUID, error)

	// RebindUser moves entries matching keys from one user to another.
	RebindUser(ctx context.Context, from, to uuid.UUID, keys []string) (int, error)

	GetStatus() (schema.StoreStatus, error)
	Close() error
}

// PipelineStateStore persists per-user, per-stage watermarks and run history.
type PipelineStateStore interface {
	// GetState returns the stored state, or a zero state for a stage that never ran.
	GetState(ctx context.Context, user uuid.UUID, stage schema.PipelineStage) (schema.PipelineState, error)

	// AdvanceWatermark sets last_processed_ts to next only if it still equals prev.
	// It returns false when another run advanced the watermark first.
	AdvanceWatermark(ctx context.Context, user uuid.UUID, stage schema.PipelineStage, prev *float64, next float64, runID int64) (bool, error)

	// ResetState forgets the watermark so the next run starts from the earliest entry.
	ResetState(ctx context.Context, user uuid.UUID, stage schema.PipelineStage) error

	// BeginRun records a new running stage run and returns its id.
	BeginRun(ctx context.Context, user uuid.UUID, stage schema.PipelineStage, window schema.TimeRange) (int64, error)

	// EndRun records the outcome of a stage run.
	EndRun(ctx context.Context, runID int64, status schema.RunStatus, processed int, runErr error) error

	// ListRuns returns recorded runs, for every user when user is uuid.Nil.
	ListRuns(ctx context.Context, user uuid.UUID) ([]schema.PipelineRunRecord, error)

	Close() error
}

// CacheStore defines the interface for cache data storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// StoreManager defines the interface for reaching the configured stores.
// This allows the storage layer to be mocked for testing.
type StoreManager interface {
	GetTimeSeries() TimeSeries
	GetStateStore() PipelineStateStore
	GetScoreCache() CacheStore
}
