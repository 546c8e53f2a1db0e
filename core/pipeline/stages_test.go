package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/core/footprint"
	"github.com/jiji14/e-mission-server/internal/archive"
	"github.com/jiji14/e-mission-server/internal/codec"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/iostore"
	"github.com/jiji14/e-mission-server/internal/section"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func insertSection(t *testing.T, store *iostore.SQLStore, trip, id string, start, end, distance float64, mode schema.Mode) {
	t.Helper()
	e, err := codec.NewEntry(testUser, schema.KeyCleanedSection, schema.SectionData{
		TripID: trip, SectionID: id, StartTs: start, EndTs: end, Distance: distance, Duration: end - start, ConfirmedMode: mode,
	}, end)
	require.NoError(t, err)
	require.NoError(t, store.InsertEntries(context.Background(), e))
}

func TestConfirmTripsStage(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	insertSection(t, store, "t1", "s1", 100, 200, 1000, schema.ModeBus)
	insertSection(t, store, "t1", "s2", 200, 260, 300, schema.ModeWalking)
	insertSection(t, store, "t2", "s3", 400, 500, 50, "")

	stage := NewConfirmTripsStage(store)
	stage.now = func() time.Time { return time.Unix(1000, 0) }

	q := schema.TimeQuery{Field: schema.TimeFieldData, StartTs: 100, EndTs: 450}
	n, err := stage.Run(ctx, testUser, q)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := store.FindEntries(ctx, testUser, []string{schema.KeyConfirmedTrip}, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	trip, err := codec.DecodeAs[schema.TripData](entries[0])
	require.NoError(t, err)
	assert.Equal(t, "t1", trip.TripID)
	assert.Equal(t, 2, trip.SectionCount)
	assert.Equal(t, schema.ModeBus, trip.PrimaryMode)
	assert.Equal(t, 1000.0, entries[0].Metadata.WriteTs)

	// Running over the same window again adds nothing.
	n, err = stage.Run(ctx, testUser, q)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfirmTripsStage_PullsWholeTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	insertSection(t, store, "t1", "s1", 100, 200, 1000, schema.ModeBus)
	insertSection(t, store, "t1", "s2", 600, 700, 300, schema.ModeBus)

	n, err := NewConfirmTripsStage(store).Run(ctx, testUser, schema.TimeQuery{Field: schema.TimeFieldData, StartTs: 0, EndTs: 150})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := store.FindEntries(ctx, testUser, []string{schema.KeyConfirmedTrip}, nil)
	require.NoError(t, err)
	trip, err := codec.DecodeAs[schema.TripData](entries[0])
	require.NoError(t, err)
	assert.Equal(t, 700.0, trip.EndTs)
	assert.Equal(t, 1300.0, trip.Distance)
}

func TestScoreStage(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	insertSection(t, store, "t1", "s1", 100, 200, 1000, schema.ModeBus)
	insertSection(t, store, "t1", "s2", 300, 400, 1000, "")

	cache := &iostore.MockCacheStore{}
	cache.On("Get", mock.Anything).Return(nil, 0, int64(0), assert.AnError)
	cache.On("Set", mock.Anything, mock.Anything, schema.ScoreCacheVersion, mock.Anything).Return(nil).Once()

	engine := footprint.NewEngine(section.NewLoader(store), schema.DefaultFootprintPolicy(), footprint.WithCache(cache, time.Hour))
	n, err := NewScoreStage(engine).Run(ctx, testUser, schema.TimeQuery{Field: schema.TimeFieldData, StartTs: 0, EndTs: 500})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	cache.AssertExpectations(t)
}

func TestScoreStage_CacheWriteFailure(t *testing.T) {
	store := newStore(t)
	insertSection(t, store, "t1", "s1", 100, 200, 1000, schema.ModeBus)

	cache := &iostore.MockCacheStore{}
	cache.On("Get", mock.Anything).Return(nil, 0, int64(0), assert.AnError)
	cache.On("Set", mock.Anything, mock.Anything, schema.ScoreCacheVersion, mock.Anything).Return(errors.New("disk full"))

	engine := footprint.NewEngine(section.NewLoader(store), schema.DefaultFootprintPolicy(), footprint.WithCache(cache, time.Hour))
	runner := NewRunner(store, store, []Stage{NewScoreStage(engine)}, WithClock((&clock{t: time.Unix(1000, 0)}).now))

	_, err := store.AdvanceWatermark(context.Background(), testUser, schema.StageConfirmTrips, nil, 500, 0)
	require.NoError(t, err)

	_, outcome, err := runner.RunStage(context.Background(), testUser, schema.StageScore, schema.PipelineState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to cache score: disk full")
	assert.NotEmpty(t, outcome.Err)

	state, err := store.GetState(context.Background(), testUser, schema.StageScore)
	require.NoError(t, err)
	assert.Nil(t, state.LastProcessedTs, "watermark stays put without a cached score")
	assert.Equal(t, schema.RunFailed, state.LastRunStatus)
}

func TestScoreStage_ExclusiveStart(t *testing.T) {
	store := newStore(t)
	insertSection(t, store, "t1", "s1", 100, 200, 1000, schema.ModeBus)
	insertSection(t, store, "t2", "s2", 300, 400, 1000, schema.ModeBus)
	stage := NewScoreStage(footprint.NewEngine(section.NewLoader(store), schema.DefaultFootprintPolicy()))

	tests := []struct {
		name      string
		exclusive bool
		expected  int
	}{
		{"inclusive start keeps the boundary section", false, 2},
		{"exclusive start drops the boundary section", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := stage.Run(context.Background(), testUser, schema.TimeQuery{Field: schema.TimeFieldData, StartTs: 100, EndTs: 500, StartExclusive: tt.exclusive})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

// flakyStates fails the next failures EXPORT watermark advances.
type flakyStates struct {
	*iostore.SQLStore
	failures int
}

func (s *flakyStates) AdvanceWatermark(ctx context.Context, user uuid.UUID, stage schema.PipelineStage, prev *float64, next float64, runID int64) (bool, error) {
	if stage == schema.StageExport && s.failures > 0 {
		s.failures--
		return false, contract.NewStoreAccessError("advance watermark", errors.New("connection reset"))
	}
	return s.SQLStore.AdvanceWatermark(ctx, user, stage, prev, next, runID)
}

func TestExportStage_RetryAfterWatermarkFailureKeepsArchive(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	entries := insertLocations(t, store, testUser, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	dir := t.TempDir()

	_, err := store.AdvanceWatermark(ctx, testUser, schema.StageExport, nil, 0.5, 0)
	require.NoError(t, err)

	states := &flakyStates{SQLStore: store, failures: 1}
	runner := NewRunner(store, states, []Stage{
		&fakeStage{name: schema.StageConfirmTrips},
		NewExportStage(store, dir, archive.Options{Purge: true}, nil),
	}, WithClock((&clock{t: time.Unix(200, 0)}).now))
	stages := []schema.PipelineStage{schema.StageConfirmTrips, schema.StageExport}

	_, err = runner.RunUser(ctx, testUser, stages)
	require.Error(t, err)
	assert.True(t, contract.IsRetryable(err))

	path := archive.FileName(dir, testUser, 0.5, 200) + archive.Extension
	got, err := archive.ReadArchive(path)
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	remaining, err := store.CountEntries(ctx, testUser, nil)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	outcomes, err := runner.RunUser(ctx, testUser, stages)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, len(entries), outcomes[1].Processed)

	got, err = archive.ReadArchive(path)
	require.NoError(t, err)
	assert.Len(t, got, len(entries), "the retry keeps every archived entry")

	state, err := store.GetState(ctx, testUser, schema.StageExport)
	require.NoError(t, err)
	assert.Equal(t, 200.0, *state.LastProcessedTs)
}
