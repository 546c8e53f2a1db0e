package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/archive"
	"github.com/jiji14/e-mission-server/internal/codec"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/iostore"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const fixturePath = "testdata/real_example.json"

var testUser = uuid.MustParse("0763de67-f61e-3f5d-90e7-518e69793954")

// newTestManager opens a SQLite store and score cache in a temp directory.
func newTestManager(t *testing.T) *iostore.StoreManagerImpl {
	t.Helper()
	dir := t.TempDir()
	store, err := iostore.NewSQLStore(schema.SQLiteBackend, filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	cache, err := iostore.OpenScoreCache(schema.SQLiteBackend, filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cache.Close()
		_ = store.Close()
	})
	return iostore.NewStoreManager(store, cache)
}

// testConfig returns a config covering the fixture with no lag.
func testConfig(t *testing.T) *contract.Config {
	t.Helper()
	return &contract.Config{
		UserID:       testUser,
		StartTime:    time.Date(2015, 7, 22, 0, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2015, 7, 24, 0, 0, 0, 0, time.UTC),
		Workers:      2,
		Stages:       schema.AllStages,
		TimeField:    schema.TimeFieldData,
		Precision:    2,
		Output:       schema.JSONOut,
		OutputFile:   filepath.Join(t.TempDir(), "out.json"),
		Backend:      schema.SQLiteBackend,
		CacheBackend: schema.SQLiteBackend,
		ArchiveDir:   filepath.Join(t.TempDir(), "archived"),
		Timeout:      time.Minute,
		Policy:       schema.DefaultFootprintPolicy(),
	}
}

func quietCtx() context.Context {
	return WithSuppressHeader(context.Background())
}

func TestExecutorsRequireStore(t *testing.T) {
	mgr := &iostore.MockStoreManager{}
	mgr.On("GetTimeSeries").Return(nil)
	mgr.On("GetStateStore").Return(nil)

	cfg := testConfig(t)
	executors := map[string]ExecutorFunc{
		"pipeline run":   ExecutePipelineRun,
		"pipeline state": ExecutePipelineState,
		"pipeline reset": ExecutePipelineReset,
		"pipeline runs":  ExecutePipelineRuns,
		"export":         ExecuteExport,
		"score":          ExecuteScore,
		"sections":       ExecuteSections,
	}
	for name, exec := range executors {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, exec(quietCtx(), cfg, mgr), errStoreNotInitialized)
		})
	}
}

func TestPerUserCommandsRequireUser(t *testing.T) {
	mgr := newTestManager(t)
	cfg := testConfig(t)
	cfg.UserID = uuid.Nil

	for _, exec := range []ExecutorFunc{ExecutePipelineReset, ExecuteExport, ExecuteScore, ExecuteSections} {
		err := exec(quietCtx(), cfg, mgr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--user is required")
	}
}

func TestResolveUsersSorted(t *testing.T) {
	a := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	b := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	series := &iostore.MockTimeSeries{}
	series.On("ListUsers", mock.Anything).Return([]uuid.UUID{a, b}, nil)

	users, err := resolveUsers(context.Background(), &contract.Config{}, series)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b, a}, users)

	users, err = resolveUsers(context.Background(), &contract.Config{UserID: a}, series)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, users)
	series.AssertNumberOfCalls(t, "ListUsers", 1)
}

func TestPipelineRunOnEmptyStore(t *testing.T) {
	mgr := newTestManager(t)
	cfg := testConfig(t)
	cfg.UserID = uuid.Nil

	outcomes, err := GetPipelineResults(quietCtx(), cfg, mgr)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestPipelineRunThenExportMatchesStore(t *testing.T) {
	ctx := quietCtx()
	mgr := newTestManager(t)
	cfg := testConfig(t)
	series := mgr.GetTimeSeries()

	n, err := LoadEntries(ctx, series, fixturePath, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	outcomes, err := GetPipelineResults(ctx, cfg, mgr)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, schema.StageConfirmTrips, outcomes[0].Stage)
	assert.Equal(t, 2, outcomes[0].Processed)
	for _, o := range outcomes {
		assert.Empty(t, o.Err, "stage %s", o.Stage)
	}

	tripCount, err := series.CountEntries(ctx, testUser, []string{schema.KeyConfirmedTrip})
	require.NoError(t, err)
	assert.Equal(t, 2, tripCount)

	archives, err := filepath.Glob(filepath.Join(cfg.ArchiveDir, "*"+archive.Extension))
	require.NoError(t, err)
	require.Len(t, archives, 1)

	exported, err := archive.ReadArchive(archives[0])
	require.NoError(t, err)
	stored, err := series.FindEntries(ctx, testUser, nil, nil)
	require.NoError(t, err)
	require.Len(t, exported, len(stored))

	exportedTrips := 0
	for _, e := range exported {
		if e.Metadata.Key == schema.KeyConfirmedTrip {
			exportedTrips++
		}
	}
	assert.Equal(t, tripCount, exportedTrips)

	raw := readGzipJSON(t, archives[0])
	for i := range 3 {
		id := raw[i]["_id"].(map[string]any)
		user := raw[i]["user_id"].(map[string]any)
		assert.Equal(t, stored[i].ID.Hex(), id["$oid"])
		assert.Equal(t, codec.UUIDHex(stored[i].UserID), user["$uuid"])
	}

	// A second run finds nothing new.
	outcomes, err = GetPipelineResults(ctx, cfg, mgr)
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.True(t, o.Skipped || o.Processed == 0, "stage %s reprocessed data", o.Stage)
	}

	runs, err := GetPipelineRuns(ctx, cfg, mgr)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func readGzipJSON(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.NewDecoder(zr).Decode(&out))
	return out
}

func TestPipelineResetClearsWatermarks(t *testing.T) {
	ctx := quietCtx()
	mgr := newTestManager(t)
	cfg := testConfig(t)
	cfg.Stages = []schema.PipelineStage{schema.StageConfirmTrips}

	_, err := LoadEntries(ctx, mgr.GetTimeSeries(), fixturePath, uuid.Nil)
	require.NoError(t, err)
	_, err = GetPipelineResults(ctx, cfg, mgr)
	require.NoError(t, err)

	states, err := GetPipelineStates(ctx, cfg, mgr)
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.NotNil(t, states[0].LastProcessedTs)

	require.NoError(t, ExecutePipelineReset(ctx, cfg, mgr))
	states, err = GetPipelineStates(ctx, cfg, mgr)
	require.NoError(t, err)
	assert.Nil(t, states[0].LastProcessedTs)
}

func TestManualExportAndScore(t *testing.T) {
	ctx := quietCtx()
	mgr := newTestManager(t)
	cfg := testConfig(t)

	_, err := LoadEntries(ctx, mgr.GetTimeSeries(), fixturePath, uuid.Nil)
	require.NoError(t, err)

	result, err := GetExportResult(ctx, cfg, mgr)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Entries)
	assert.Equal(t, float64(cfg.StartTime.Unix()), result.StartTs)
	assert.FileExists(t, result.Path)

	report, err := GetScoreResults(ctx, cfg, mgr)
	require.NoError(t, err)
	assert.Equal(t, 4, report.SectionCount)
	assert.Equal(t, 4, report.Confirmed)
	require.Len(t, report.Components, 4)
	assert.Equal(t, 1.0, report.Components[schema.ComponentCoverage])
	require.Positive(t, report.OptimalKg)
	assert.InDelta(t, (report.ActualKg-report.OptimalKg)/report.OptimalKg, report.Components[schema.ComponentOptimal], 1e-9)
	assert.Greater(t, report.Components[schema.ComponentOptimal], 1.0, "excess over the optimal footprint is not capped")
	assert.InDelta(t, (report.AllDriveKg-report.ActualKg)/report.AllDriveKg, report.Components[schema.ComponentAllDrive], 1e-9)
	assert.InDelta(t, (report.GoalKg-report.ActualKg)/report.GoalKg, report.Components[schema.ComponentGoal], 1e-9)
	assert.LessOrEqual(t, report.Components[schema.ComponentAllDrive], 1.0)
	assert.LessOrEqual(t, report.Components[schema.ComponentGoal], 1.0)

	require.NoError(t, ExecuteScore(ctx, cfg, mgr))
	b, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"breakdown"`)
}

func TestGetSectionResultsAppliesConfirmations(t *testing.T) {
	ctx := quietCtx()
	mgr := newTestManager(t)
	cfg := testConfig(t)

	_, err := LoadEntries(ctx, mgr.GetTimeSeries(), fixturePath, uuid.Nil)
	require.NoError(t, err)

	sections, err := GetSectionResults(ctx, cfg, mgr)
	require.NoError(t, err)
	require.Len(t, sections, 4)
	assert.Equal(t, schema.ModeWalking, sections[1].ConfirmedMode)
	assert.Equal(t, schema.ModeDrive, sections[2].ConfirmedMode)
}

func TestExecuteStoreRebind(t *testing.T) {
	ctx := quietCtx()
	mgr := newTestManager(t)
	other := uuid.MustParse("6a7c5b1e-2a3d-4c7f-9e0a-1b2c3d4e5f60")

	assert.Error(t, ExecuteStoreRebind(ctx, mgr, uuid.Nil, other, nil))
	assert.Error(t, ExecuteStoreRebind(ctx, mgr, other, other, nil))

	_, err := LoadEntries(ctx, mgr.GetTimeSeries(), fixturePath, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, ExecuteStoreRebind(ctx, mgr, testUser, other, []string{schema.KeyModeConfirm}))

	n, err := mgr.GetTimeSeries().CountEntries(ctx, other, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
