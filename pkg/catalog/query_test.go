package catalog

import (
	"context"
	"testing"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalizedQuery(t *testing.T) (*Query, *DirStore) {
	t.Helper()
	store := NewDirStore(t.TempDir())
	require.NoError(t, store.WriteSnapshot(testSnapshot(t)))

	prefs := &PreferenceResolver{Store: store, Getenv: func(string) string { return "true" }}
	return &Query{Cache: NewCache(store), Prefs: prefs}, store
}

func legacyQuery(t *testing.T) (*Query, *DirStore) {
	t.Helper()
	store := NewDirStore(t.TempDir())
	require.NoError(t, store.WriteLegacy(materializeLegacy(testSnapshot(t))))

	prefs := &PreferenceResolver{Store: store, Getenv: func(string) string { return "" }}
	return &Query{Cache: NewCache(store), Prefs: prefs}, store
}

func TestFindServicesMatching(t *testing.T) {
	query, _ := normalizedQuery(t)

	tests := []struct {
		name     string
		pattern  string
		expected []string
	}{
		{"empty pattern returns everything", "", []string{"ServiceA", "ServiceB"}},
		{"exact substring", "Service A", []string{"ServiceA"}},
		{"exact appId", "0000bbbb-0000-0000-0000-000000000002", []string{"ServiceB"}},
		{"punctuation-insensitive", "service-a", nil}, // case-sensitive: no match
		{"normalized substring", "ServiceA", []string{"ServiceA"}},
		{"no match yields empty not nil", "Nothing Here", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := query.FindServices(context.Background(), tt.pattern, FindOptions{})
			require.NoError(t, err)
			require.NotNil(t, results)

			keys := make([]string, 0, len(results))
			for _, info := range results {
				keys = append(keys, info.Service.ServiceKey)
			}
			if len(tt.expected) == 0 {
				assert.Empty(t, keys)
			} else {
				assert.Equal(t, tt.expected, keys)
			}
		})
	}
}

func TestFindServicesNormalizedPermissionJoin(t *testing.T) {
	query, _ := normalizedQuery(t)

	results, err := query.FindServices(context.Background(), "Service B", FindOptions{IncludePermissions: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	info := results[0]
	require.Len(t, info.ApplicationPermissions, 1)
	assert.Equal(t, "Read.All", info.ApplicationPermissions[0].Name)
	assert.Equal(t, "Read everything", info.ApplicationPermissions[0].DisplayName, "definitions joined, not name-only")

	require.Len(t, info.DelegatedPermissions, 1)
	assert.Equal(t, "User.Read", info.DelegatedPermissions[0].Name)
	assert.Equal(t, "User", info.DelegatedPermissions[0].Type)
}

func TestFindServicesLegacyRichJoin(t *testing.T) {
	query, _ := legacyQuery(t)

	results, err := query.FindServices(context.Background(), "Service B", FindOptions{IncludePermissions: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	info := results[0]
	require.Len(t, info.ApplicationPermissions, 1)
	assert.Equal(t, "Read everything", info.ApplicationPermissions[0].DisplayName)
	require.Len(t, info.DelegatedPermissions, 1)
	assert.Equal(t, "User.Read", info.DelegatedPermissions[0].Name)
}

func TestFindServicesLegacyFlatFallback(t *testing.T) {
	store := NewDirStore(t.TempDir())

	// An old-schema file: no nested Permissions block, only the flat list.
	legacy := &LegacyCatalog{
		Metadata: CatalogMetadata{Version: CatalogVersion},
		ServicePrincipals: map[string]ServicePrincipalRecord{
			"OldService": {ServiceKey: "OldService", AppId: "0000aaaa-0000-0000-0000-00000000000f", DisplayName: "Old Service"},
		},
		CommonPermissions: map[string][]string{
			"OldService": {"Legacy.Read"},
		},
	}
	require.NoError(t, store.WriteLegacy(legacy))

	query := &Query{
		Cache: NewCache(store),
		Prefs: &PreferenceResolver{Store: store, Getenv: func(string) string { return "" }},
	}

	results, err := query.FindServices(context.Background(), "Old Service", FindOptions{IncludePermissions: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.Len(t, results[0].ApplicationPermissions, 1)
	assert.Equal(t, "Legacy.Read", results[0].ApplicationPermissions[0].Name)
	assert.Empty(t, results[0].ApplicationPermissions[0].DisplayName, "flat entries are name-only")
	assert.Empty(t, results[0].DelegatedPermissions)
}

func TestFindServicesNoCatalogIsFatal(t *testing.T) {
	store := NewDirStore(t.TempDir())
	query := &Query{
		Cache: NewCache(store),
		Prefs: &PreferenceResolver{Store: store, Getenv: func(string) string { return "true" }},
	}

	results, err := query.FindServices(context.Background(), "", FindOptions{})
	require.Error(t, err)
	assert.Nil(t, results)
}

func TestFindServicesLiveRequiresSession(t *testing.T) {
	query, _ := normalizedQuery(t)
	query.Session = stubSession(false)

	_, err := query.FindServices(context.Background(), "", FindOptions{IncludeLiveServicePrincipal: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session")
}

func TestFindServicesAttachesLive(t *testing.T) {
	query, _ := normalizedQuery(t)

	live := newSP("oid-b", "0000bbbb-0000-0000-0000-000000000002", "Service B", "Microsoft Services")
	query.Session = stubSession(true)
	query.Client = &fakeDirectory{pages: [][]models.ServicePrincipalable{{live}}}

	results, err := query.FindServices(context.Background(), "Service B", FindOptions{IncludeLiveServicePrincipal: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Live)
	assert.Equal(t, "oid-b", *results[0].Live.GetId())
}
