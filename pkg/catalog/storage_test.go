package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()

	defs := NewPermissionDefinitions()
	defs.Application["Read.All"] = PermissionDefinition{
		Name:               "Read.All",
		Id:                 "11111111-1111-1111-1111-111111111111",
		DisplayName:        "Read everything",
		AllowedMemberTypes: []string{"Application"},
	}
	defs.Delegated["User.Read"] = PermissionDefinition{
		Name:                   "User.Read",
		Id:                     "22222222-2222-2222-2222-222222222222",
		DisplayName:            "Sign in and read user profile",
		UserConsentDisplayName: "Sign you in",
		Type:                   "User",
	}

	return &Snapshot{
		Index: CatalogIndex{
			Metadata: CatalogMetadata{
				LastUpdated:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				RefreshIntervalDays: 30,
				AutoRefreshEnabled:  true,
				Version:             CatalogVersion,
			},
			Files: DefaultFiles(),
		},
		ServicePrincipals: map[string]ServicePrincipalRecord{
			"ServiceA": {ServiceKey: "ServiceA", AppId: "0000aaaa-0000-0000-0000-000000000001", DisplayName: "Service A"},
			"ServiceB": {ServiceKey: "ServiceB", AppId: "0000bbbb-0000-0000-0000-000000000002", DisplayName: "Service B"},
		},
		Definitions: defs,
		Mappings: map[string]ServicePermissionMapping{
			"ServiceA": {Application: []string{"Read.All"}},
			"ServiceB": {Application: []string{"Read.All"}, Delegated: []string{"User.Read"}},
		},
		CommonPermissions: map[string][]string{
			"ServiceA": {"Read.All"},
			"ServiceB": {"Read.All"},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewDirStore(t.TempDir())
	snap := testSnapshot(t)
	require.NoError(t, store.WriteSnapshot(snap))

	index, ok, err := store.ReadIndex()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Index.Metadata, index.Metadata)
	assert.Equal(t, snap.Index.Files, index.Files)

	sps, ok, err := store.ReadServicePrincipals(ServicePrincipalsFileName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.ServicePrincipals, sps)

	defs, ok, err := store.ReadPermissionDefinitions(PermissionDefsFileName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Definitions, defs)

	mappings, ok, err := store.ReadMappings(MappingsFileName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Mappings, mappings)

	common, ok, err := store.ReadCommonPermissions(CommonPermissionsFileName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.CommonPermissions, common)
}

func TestWriteSnapshotClearsRefreshMarker(t *testing.T) {
	store := NewDirStore(t.TempDir())
	require.NoError(t, store.WriteSnapshot(testSnapshot(t)))
	assert.False(t, store.HasRefreshMarker())
}

func TestReadIndexAbsent(t *testing.T) {
	store := NewDirStore(t.TempDir())
	index, ok, err := store.ReadIndex()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, index)
}

func TestReadIndexRejectsOldVersion(t *testing.T) {
	dir := t.TempDir()
	store := NewDirStore(dir)

	snap := testSnapshot(t)
	snap.Index.Metadata.Version = "2.1"
	require.NoError(t, store.WriteSnapshot(snap))

	index, ok, err := store.ReadIndex()
	require.NoError(t, err)
	assert.False(t, ok, "an index below the minimum version is unavailable, not an error")
	assert.Nil(t, index)
}

func TestReadIndexCorruptIsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFileName), []byte("{not json"), 0644))

	_, _, err := NewDirStore(dir).ReadIndex()
	assert.Error(t, err)
}

func TestReadLegacyDefaultsMissingSections(t *testing.T) {
	dir := t.TempDir()
	// Old files may carry only metadata and the flat common list.
	doc := `{"Metadata":{"LastUpdated":"2026-01-01T00:00:00Z","RefreshIntervalDays":30,"AutoRefreshEnabled":true,"Version":"3.0"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyFileName), []byte(doc), 0644))

	legacy, ok, err := NewDirStore(dir).ReadLegacy()
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, legacy.ServicePrincipals)
	assert.NotNil(t, legacy.CommonPermissions)
	assert.Empty(t, legacy.ServicePrincipals)
}

func TestInitializeStructure(t *testing.T) {
	store := NewDirStore(filepath.Join(t.TempDir(), "Config"))

	result, err := store.InitializeStructure(false)
	require.NoError(t, err)
	assert.Len(t, result.Created, 5)
	assert.Empty(t, result.Existing)

	index, ok, err := store.ReadIndex()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, CatalogVersion, index.Metadata.Version)
	assert.Equal(t, DefaultFiles(), index.Files)
}

func TestInitializeStructureRefusesOverwrite(t *testing.T) {
	store := NewDirStore(t.TempDir())

	_, err := store.InitializeStructure(false)
	require.NoError(t, err)

	result, err := store.InitializeStructure(false)
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Len(t, result.Existing, 5)

	forced, err := store.InitializeStructure(true)
	require.NoError(t, err)
	assert.Len(t, forced.Created, 5)
}

func TestVersionSupported(t *testing.T) {
	tests := []struct {
		version  string
		expected bool
	}{
		{"3.0", true},
		{"3.1", true},
		{"4.0", true},
		{"2.9", false},
		{"", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.expected, versionSupported(tt.version))
		})
	}
}
