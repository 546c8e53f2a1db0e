package iostore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockStoreManager is a mock implementation of StoreManager for testing.
type MockStoreManager struct {
	mock.Mock
}

var _ contract.StoreManager = &MockStoreManager{} // Compile-time check

// GetTimeSeries implements the StoreManager interface.
func (m *MockStoreManager) GetTimeSeries() contract.TimeSeries {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.TimeSeries)
	return store
}

// GetStateStore implements the StoreManager interface.
func (m *MockStoreManager) GetStateStore() contract.PipelineStateStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.PipelineStateStore)
	return store
}

// GetScoreCache implements the StoreManager interface.
func (m *MockStoreManager) GetScoreCache() contract.CacheStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.CacheStore)
	return store
}

// MockCacheStore is a mock implementation of CacheStore for testing.
type MockCacheStore struct {
	mock.Mock
}

var _ contract.CacheStore = &MockCacheStore{} // Compile-time check

// Get implements the CacheStore interface.
func (m *MockCacheStore) Get(key string) ([]byte, int, int64, error) {
	args := m.Called(key)
	data, _ := args.Get(0).([]byte)
	return data, args.Int(1), args.Get(2).(int64), args.Error(3)
}

// Set implements the CacheStore interface.
func (m *MockCacheStore) Set(key string, data []byte, version int, ts int64) error {
	args := m.Called(key, data, version, ts)
	return args.Error(0)
}

// Close implements the CacheStore interface.
func (m *MockCacheStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// GetStatus implements the CacheStore interface.
func (m *MockCacheStore) GetStatus() (schema.CacheStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.CacheStatus), args.Error(1)
}

// MockTimeSeries is a mock implementation of TimeSeries for testing.
type MockTimeSeries struct {
	mock.Mock
}

var _ contract.TimeSeries = &MockTimeSeries{} // Compile-time check

// InsertEntries implements the TimeSeries interface.
func (m *MockTimeSeries) InsertEntries(ctx context.Context, entries ...schema.Entry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

// FindEntries implements the TimeSeries interface.
func (m *MockTimeSeries) FindEntries(ctx context.Context, user uuid.UUID, keys []string, q *schema.TimeQuery) ([]schema.Entry, error) {
	args := m.Called(ctx, user, keys, q)
	entries, _ := args.Get(0).([]schema.Entry)
	return entries, args.Error(1)
}

// EarliestTs implements the TimeSeries interface.
func (m *MockTimeSeries) EarliestTs(ctx context.Context, user uuid.UUID, field schema.TimeField) (float64, bool, error) {
	args := m.Called(ctx, user, field)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

// CountEntries implements the TimeSeries interface.
func (m *MockTimeSeries) CountEntries(ctx context.Context, user uuid.UUID, keys []string) (int, error) {
	args := m.Called(ctx, user, keys)
	return args.Int(0), args.Error(1)
}

// DeleteEntries implements the TimeSeries interface.
func (m *MockTimeSeries) DeleteEntries(ctx context.Context, user uuid.UUID, ids []primitive.ObjectID) (int, error) {
	args := m.Called(ctx, user, ids)
	return args.Int(0), args.Error(1)
}

// ListUsers implements the TimeSeries interface.
func (m *MockTimeSeries) ListUsers(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]uuid.UUID)
	return users, args.Error(1)
}

// RebindUser implements the TimeSeries interface.
func (m *MockTimeSeries) RebindUser(ctx context.Context, from, to uuid.UUID, keys []string) (int, error) {
	args := m.Called(ctx, from, to, keys)
	return args.Int(0), args.Error(1)
}

// GetStatus implements the TimeSeries interface.
func (m *MockTimeSeries) GetStatus() (schema.StoreStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.StoreStatus), args.Error(1)
}

// Close implements the TimeSeries interface.
func (m *MockTimeSeries) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockStateStore is a mock implementation of PipelineStateStore for testing.
type MockStateStore struct {
	mock.Mock
}

var _ contract.PipelineStateStore = &MockStateStore{} // Compile-time check

// GetState implements the PipelineStateStore interface.
func (m *MockStateStore) GetState(ctx context.Context, user uuid.UUID, stage schema.PipelineStage) (schema.PipelineState, error) {
	args := m.Called(ctx, user, stage)
	return args.Get(0).(schema.PipelineState), args.Error(1)
}

// AdvanceWatermark implements the PipelineStateStore interface.
func (m *MockStateStore) AdvanceWatermark(ctx context.Context, user uuid.UUID, stage schema.PipelineStage, prev *float64, next float64, runID int64) (bool, error) {
	args := m.Called(ctx, user, stage, prev, next, runID)
	return args.Bool(0), args.Error(1)
}

// ResetState implements the PipelineStateStore interface.
func (m *MockStateStore) ResetState(ctx context.Context, user uuid.UUID, stage schema.PipelineStage) error {
	args := m.Called(ctx, user, stage)
	return args.Error(0)
}

// BeginRun implements the PipelineStateStore interface.
func (m *MockStateStore) BeginRun(ctx context.Context, user uuid.UUID, stage schema.PipelineStage, window schema.TimeRange) (int64, error) {
	args := m.Called(ctx, user, stage, window)
	return args.Get(0).(int64), args.Error(1)
}

// EndRun implements the PipelineStateStore interface.
func (m *MockStateStore) EndRun(ctx context.Context, runID int64, status schema.RunStatus, processed int, runErr error) error {
	args := m.Called(ctx, runID, status, processed, runErr)
	return args.Error(0)
}

// ListRuns implements the PipelineStateStore interface.
func (m *MockStateStore) ListRuns(ctx context.Context, user uuid.UUID) ([]schema.PipelineRunRecord, error) {
	args := m.Called(ctx, user)
	runs, _ := args.Get(0).([]schema.PipelineRunRecord)
	return runs, args.Error(1)
}

// Close implements the PipelineStateStore interface.
func (m *MockStateStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
