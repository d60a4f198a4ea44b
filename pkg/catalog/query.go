package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/sable-sec/appregctl/pkg/graph"
)

// FindOptions control what FindServices attaches to each match.
type FindOptions struct {
	IncludePermissions          bool
	IncludeLiveServicePrincipal bool
}

// ServiceInfo is one query result: the catalog record, optionally the
// joined permission definitions, and optionally the live directory
// object.
type ServiceInfo struct {
	Service                ServicePrincipalRecord
	ApplicationPermissions []PermissionDefinition
	DelegatedPermissions   []PermissionDefinition
	Live                   models.ServicePrincipalable
}

// Query answers service lookups against whichever storage format is
// active. Client and Session are only needed for live lookups.
type Query struct {
	Cache   *Cache
	Prefs   *PreferenceResolver
	Client  graph.DirectoryClient
	Session Session
}

// FindServices returns every catalog service matching pattern. An empty
// pattern returns the whole catalog. Matching tries, in order: exact
// appId, case-sensitive display-name substring, and alphanumeric-
// normalized substring (display names vary in punctuation upstream).
// A nil result with an error means no catalog data exists at all.
func (q *Query) FindServices(ctx context.Context, pattern string, opts FindOptions) ([]ServiceInfo, error) {
	var results []ServiceInfo
	var err error

	if q.Prefs.Resolve(false).UseNormalizedStorage {
		results, err = q.findNormalized(pattern, opts)
	} else {
		results, err = q.findLegacy(pattern, opts)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Service.ServiceKey < results[j].Service.ServiceKey
	})

	if opts.IncludeLiveServicePrincipal {
		if err := q.attachLive(ctx, results); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func matches(record ServicePrincipalRecord, pattern string) bool {
	if pattern == "" {
		return true
	}
	if record.AppId == pattern {
		return true
	}
	if strings.Contains(record.DisplayName, pattern) {
		return true
	}
	return strings.Contains(NormalizeForMatch(record.DisplayName), NormalizeForMatch(pattern))
}

func (q *Query) findNormalized(pattern string, opts FindOptions) ([]ServiceInfo, error) {
	index, err := q.Cache.Index()
	if err != nil {
		return nil, err
	}
	if index == nil {
		return nil, fmt.Errorf("no catalog data found; run 'appregctl catalog refresh' first")
	}

	sps, err := q.Cache.ServicePrincipals()
	if err != nil {
		return nil, err
	}

	results := []ServiceInfo{}
	for _, record := range sps {
		if !matches(record, pattern) {
			continue
		}
		info := ServiceInfo{Service: record}
		if opts.IncludePermissions {
			if err := q.joinNormalizedPermissions(&info); err != nil {
				return nil, err
			}
		}
		results = append(results, info)
	}
	return results, nil
}

func (q *Query) joinNormalizedPermissions(info *ServiceInfo) error {
	mappings, err := q.Cache.Mappings()
	if err != nil {
		return err
	}
	defs, err := q.Cache.PermissionDefinitions()
	if err != nil {
		return err
	}

	mapping, ok := mappings[info.Service.ServiceKey]
	if !ok {
		return nil
	}

	info.ApplicationPermissions = resolveNames(mapping.Application, defsOrNil(defs, KindApplication))
	info.DelegatedPermissions = resolveNames(mapping.Delegated, defsOrNil(defs, KindDelegated))
	return nil
}

func defsOrNil(defs *PermissionDefinitions, kind PermissionKind) map[string]PermissionDefinition {
	if defs == nil {
		return nil
	}
	if kind == KindApplication {
		return defs.Application
	}
	return defs.Delegated
}

// resolveNames joins mapping names against the definition table. A name
// with no definition (partial catalog) still appears, name-only.
func resolveNames(names []string, table map[string]PermissionDefinition) []PermissionDefinition {
	result := make([]PermissionDefinition, 0, len(names))
	for _, name := range names {
		if def, ok := table[name]; ok {
			result = append(result, def)
		} else {
			result = append(result, PermissionDefinition{Name: name})
		}
	}
	return result
}

func (q *Query) findLegacy(pattern string, opts FindOptions) ([]ServiceInfo, error) {
	legacy, err := q.Cache.Legacy()
	if err != nil {
		return nil, err
	}
	if legacy == nil {
		return nil, fmt.Errorf("no catalog data found; run 'appregctl catalog refresh' first")
	}

	results := []ServiceInfo{}
	for _, record := range legacy.ServicePrincipals {
		if !matches(record, pattern) {
			continue
		}
		info := ServiceInfo{Service: record}
		if opts.IncludePermissions {
			joinLegacyPermissions(&info, legacy)
		}
		results = append(results, info)
	}
	return results, nil
}

// joinLegacyPermissions prefers the rich nested schema and falls back to
// the flat application-only CommonPermissions list when a service has no
// nested block. Old files carry only the flat shape.
func joinLegacyPermissions(info *ServiceInfo, legacy *LegacyCatalog) {
	key := info.Service.ServiceKey

	if perms, ok := legacy.Permissions[key]; ok && (len(perms.Application) > 0 || len(perms.Delegated) > 0) {
		info.ApplicationPermissions = sortedDefs(perms.Application)
		info.DelegatedPermissions = sortedDefs(perms.Delegated)
		return
	}

	for _, name := range legacy.CommonPermissions[key] {
		info.ApplicationPermissions = append(info.ApplicationPermissions, PermissionDefinition{Name: name})
	}
}

func sortedDefs(table map[string]PermissionDefinition) []PermissionDefinition {
	if len(table) == 0 {
		return nil
	}
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]PermissionDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, table[name])
	}
	return defs
}

// attachLive fetches the current directory object for each match. This is
// independent of catalog freshness and needs an authenticated session.
func (q *Query) attachLive(ctx context.Context, results []ServiceInfo) error {
	if q.Session == nil || !q.Session.IsConnected() {
		return fmt.Errorf("live lookup requires an authenticated session; connect first")
	}
	for i := range results {
		if results[i].Service.AppId == "" {
			continue
		}
		live, err := q.Client.LookupByAppID(ctx, results[i].Service.AppId)
		if err != nil {
			return err
		}
		results[i].Live = live
	}
	return nil
}
