package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often each component is read so tests can
// verify the cache hits disk at most once per component.
type countingStore struct {
	index  *CatalogIndex
	sps    map[string]ServicePrincipalRecord
	defs   *PermissionDefinitions
	maps   map[string]ServicePermissionMapping
	common map[string][]string
	legacy *LegacyCatalog

	indexReads, spReads, defReads, mapReads, commonReads, legacyReads int
}

func (s *countingStore) ReadIndex() (*CatalogIndex, bool, error) {
	s.indexReads++
	return s.index, s.index != nil, nil
}

func (s *countingStore) ReadServicePrincipals(string) (map[string]ServicePrincipalRecord, bool, error) {
	s.spReads++
	return s.sps, s.sps != nil, nil
}

func (s *countingStore) ReadPermissionDefinitions(string) (*PermissionDefinitions, bool, error) {
	s.defReads++
	return s.defs, s.defs != nil, nil
}

func (s *countingStore) ReadMappings(string) (map[string]ServicePermissionMapping, bool, error) {
	s.mapReads++
	return s.maps, s.maps != nil, nil
}

func (s *countingStore) ReadCommonPermissions(string) (map[string][]string, bool, error) {
	s.commonReads++
	return s.common, s.common != nil, nil
}

func (s *countingStore) ReadLegacy() (*LegacyCatalog, bool, error) {
	s.legacyReads++
	return s.legacy, s.legacy != nil, nil
}

func populatedStore() *countingStore {
	return &countingStore{
		index: &CatalogIndex{
			Metadata: CatalogMetadata{Version: CatalogVersion, RefreshIntervalDays: 30},
			Files:    DefaultFiles(),
		},
		sps: map[string]ServicePrincipalRecord{
			"ServiceA": {ServiceKey: "ServiceA", AppId: "app-a"},
		},
		defs:   NewPermissionDefinitions(),
		maps:   map[string]ServicePermissionMapping{},
		common: map[string][]string{},
	}
}

func TestCacheLoadsEachComponentOnce(t *testing.T) {
	store := populatedStore()
	cache := NewCache(store)

	for i := 0; i < 3; i++ {
		sps, err := cache.ServicePrincipals()
		require.NoError(t, err)
		assert.Len(t, sps, 1)
	}

	assert.Equal(t, 1, store.indexReads, "index loads once")
	assert.Equal(t, 1, store.spReads, "satellite loads once")
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	store := populatedStore()
	cache := NewCache(store)

	_, err := cache.ServicePrincipals()
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.ServicePrincipals()
	require.NoError(t, err)

	assert.Equal(t, 2, store.indexReads)
	assert.Equal(t, 2, store.spReads)
}

func TestCacheSatellitesNeedIndex(t *testing.T) {
	store := &countingStore{} // no index at all
	cache := NewCache(store)

	sps, err := cache.ServicePrincipals()
	require.NoError(t, err)
	assert.Nil(t, sps)

	defs, err := cache.PermissionDefinitions()
	require.NoError(t, err)
	assert.Nil(t, defs)

	assert.Zero(t, store.spReads, "satellites must not touch disk without an index")
	assert.Zero(t, store.defReads)
}

func TestCacheMissingSatelliteIsEmptyNotFatal(t *testing.T) {
	store := populatedStore()
	store.maps = nil // satellite file missing
	cache := NewCache(store)

	mappings, err := cache.Mappings()
	require.NoError(t, err)
	assert.Nil(t, mappings)

	// Sibling components still load.
	sps, err := cache.ServicePrincipals()
	require.NoError(t, err)
	assert.Len(t, sps, 1)
}

func TestCacheLastRefresh(t *testing.T) {
	cache := NewCache(populatedStore())
	assert.Nil(t, cache.LastRefresh())

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	cache.MarkRefreshed(at)

	require.NotNil(t, cache.LastRefresh())
	assert.Equal(t, at, *cache.LastRefresh())
}
