package catalog

import (
	"log/slog"
	"sync"
	"time"
)

// Cache memoizes loaded catalog documents for the life of the process.
// Each component is read from disk at most once until Invalidate is
// called; the refresh engine invalidates after every successful write.
// The cache never judges staleness itself, that is the refresh engine's
// job against the index metadata.
type Cache struct {
	store Store

	mu           sync.Mutex
	index        *CatalogIndex
	indexLoaded  bool
	sps          map[string]ServicePrincipalRecord
	spsLoaded    bool
	defs         *PermissionDefinitions
	defsLoaded   bool
	mappings     map[string]ServicePermissionMapping
	mapsLoaded   bool
	common       map[string][]string
	commonLoaded bool
	legacy       *LegacyCatalog
	legacyLoaded bool

	lastRefresh *time.Time
}

// NewCache returns an empty cache backed by the given store. Construct
// one per process and hand it to every component that needs it.
func NewCache(store Store) *Cache {
	return &Cache{store: store}
}

// Index returns the normalized index, loading it on first use. A nil
// result with nil error means normalized storage is unavailable.
func (c *Cache) Index() (*CatalogIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked()
}

func (c *Cache) indexLocked() (*CatalogIndex, error) {
	if c.indexLoaded {
		return c.index, nil
	}

	index, ok, err := c.store.ReadIndex()
	if err != nil {
		return nil, err
	}
	c.indexLoaded = true
	if ok {
		c.index = index
	}
	return c.index, nil
}

// satelliteFilename resolves a component's filename through the index.
// Returns "" when the index is unavailable; satellites are never read
// from disk without it.
func (c *Cache) satelliteFilename(component Component) (string, error) {
	index, err := c.indexLocked()
	if err != nil || index == nil {
		return "", err
	}
	name, ok := index.Files[component]
	if !ok {
		name = DefaultFiles()[component]
	}
	return name, nil
}

// ServicePrincipals returns the service principal records, or nil when
// unavailable.
func (c *Cache) ServicePrincipals() (map[string]ServicePrincipalRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.spsLoaded {
		return c.sps, nil
	}

	filename, err := c.satelliteFilename(ComponentServicePrincipals)
	if err != nil || filename == "" {
		return nil, err
	}

	doc, ok, err := c.store.ReadServicePrincipals(filename)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("catalog component missing, treating as empty", "component", ComponentServicePrincipals, "file", filename)
	}
	c.spsLoaded = true
	c.sps = doc
	return c.sps, nil
}

// PermissionDefinitions returns the deduplicated definitions, or nil when
// unavailable.
func (c *Cache) PermissionDefinitions() (*PermissionDefinitions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.defsLoaded {
		return c.defs, nil
	}

	filename, err := c.satelliteFilename(ComponentPermissionDefinitions)
	if err != nil || filename == "" {
		return nil, err
	}

	doc, ok, err := c.store.ReadPermissionDefinitions(filename)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("catalog component missing, treating as empty", "component", ComponentPermissionDefinitions, "file", filename)
	}
	c.defsLoaded = true
	c.defs = doc
	return c.defs, nil
}

// Mappings returns the service-to-permission-name mappings, or nil when
// unavailable.
func (c *Cache) Mappings() (map[string]ServicePermissionMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mapsLoaded {
		return c.mappings, nil
	}

	filename, err := c.satelliteFilename(ComponentServicePermissionMappings)
	if err != nil || filename == "" {
		return nil, err
	}

	doc, ok, err := c.store.ReadMappings(filename)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("catalog component missing, treating as empty", "component", ComponentServicePermissionMappings, "file", filename)
	}
	c.mapsLoaded = true
	c.mappings = doc
	return c.mappings, nil
}

// CommonPermissions returns the application-only legacy view, or nil when
// unavailable.
func (c *Cache) CommonPermissions() (map[string][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.commonLoaded {
		return c.common, nil
	}

	filename, err := c.satelliteFilename(ComponentCommonPermissions)
	if err != nil || filename == "" {
		return nil, err
	}

	doc, ok, err := c.store.ReadCommonPermissions(filename)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("catalog component missing, treating as empty", "component", ComponentCommonPermissions, "file", filename)
	}
	c.commonLoaded = true
	c.common = doc
	return c.common, nil
}

// Legacy returns the monolithic legacy document, or nil when the file is
// absent.
func (c *Cache) Legacy() (*LegacyCatalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.legacyLoaded {
		return c.legacy, nil
	}

	doc, ok, err := c.store.ReadLegacy()
	if err != nil {
		return nil, err
	}
	c.legacyLoaded = true
	if ok {
		c.legacy = doc
	}
	return c.legacy, nil
}

// Invalidate clears every memoized slot. It touches only process memory,
// never files.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index, c.indexLoaded = nil, false
	c.sps, c.spsLoaded = nil, false
	c.defs, c.defsLoaded = nil, false
	c.mappings, c.mapsLoaded = nil, false
	c.common, c.commonLoaded = nil, false
	c.legacy, c.legacyLoaded = nil, false
}

// MarkRefreshed records the moment a refresh completed.
func (c *Cache) MarkRefreshed(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh = &at
}

// LastRefresh returns when this process last completed a refresh, or nil.
func (c *Cache) LastRefresh() *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh
}
