// Package iostore persists time series entries, pipeline state and cached results.
package iostore

import (
	"sync"

	"github.com/jiji14/e-mission-server/internal/contract"
)

// StoreManagerImpl holds the stores opened for the process.
type StoreManagerImpl struct {
	sync.RWMutex // Protects the store pointers during initialization
	store        *SQLStore
	scoreCache   contract.CacheStore
}

var _ contract.StoreManager = &StoreManagerImpl{} // Compile-time check

// GetTimeSeries returns the time series store.
func (mgr *StoreManagerImpl) GetTimeSeries() contract.TimeSeries {
	mgr.RLock()
	defer mgr.RUnlock()
	if mgr.store == nil {
		return nil
	}
	return mgr.store
}

// GetStateStore returns the pipeline state store.
func (mgr *StoreManagerImpl) GetStateStore() contract.PipelineStateStore {
	mgr.RLock()
	defer mgr.RUnlock()
	if mgr.store == nil {
		return nil
	}
	return mgr.store
}

// GetScoreCache returns the score cache.
func (mgr *StoreManagerImpl) GetScoreCache() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.scoreCache
}

// GetSQLStore returns the concrete store for admin operations.
func (mgr *StoreManagerImpl) GetSQLStore() *SQLStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.store
}

// NewStoreManager wraps already opened stores, mainly for tests and tools
// that manage store lifetimes themselves.
func NewStoreManager(store *SQLStore, scoreCache contract.CacheStore) *StoreManagerImpl {
	return &StoreManagerImpl{store: store, scoreCache: scoreCache}
}
