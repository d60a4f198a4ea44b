package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
	u "github.com/mpvl/unique"

	"github.com/sable-sec/appregctl/internal/message"
	"github.com/sable-sec/appregctl/pkg/graph"
)

// MicrosoftGraphAppID is the well-known appId of the built-in directory
// graph service. It is excluded from refreshes by default because its
// permission surface is large and consumers usually want the other APIs.
const MicrosoftGraphAppID = "00000003-0000-0000-c000-000000000000"

// Session gates operations that need an authenticated directory
// connection. graph.Session satisfies it.
type Session interface {
	IsConnected() bool
}

// RefreshOptions control one refresh run.
type RefreshOptions struct {
	IncludeMicrosoftGraph bool
	IncludeCustomApis     bool
	Force                 bool
	WriteLegacy           bool
}

// RefreshSummary is the post-run accounting reported to the user.
type RefreshSummary struct {
	Skipped    bool
	SkipReason string

	Services               int
	ApplicationPermissions int
	DelegatedPermissions   int
	UniqueDefinitions      int
	Pages                  int
}

// Refresher rebuilds the on-disk catalog from the upstream directory.
type Refresher struct {
	Client  graph.DirectoryClient
	Session Session
	Store   *DirStore
	Cache   *Cache

	// Now is injectable for staleness tests.
	Now func() time.Time
}

// NewRefresher wires a refresher over live collaborators.
func NewRefresher(client graph.DirectoryClient, session Session, store *DirStore, cache *Cache) *Refresher {
	return &Refresher{Client: client, Session: session, Store: store, Cache: cache, Now: time.Now}
}

// Refresh queries every application-type service principal, rebuilds the
// normalized catalog, and invalidates the cache. Without Force, a fresh
// catalog (or one with auto-refresh disabled) short-circuits before any
// upstream call. Any failure aborts the run; files already written by
// this run are left in place.
func (r *Refresher) Refresh(ctx context.Context, opts RefreshOptions) (*RefreshSummary, error) {
	if r.Session == nil || !r.Session.IsConnected() {
		return nil, fmt.Errorf("not connected to the directory service; authenticate before refreshing the catalog")
	}

	now := r.Now().UTC()

	existing, _, err := r.Store.ReadIndex()
	if err != nil {
		return nil, err
	}

	if !opts.Force && existing != nil {
		if !existing.Metadata.AutoRefreshEnabled {
			return &RefreshSummary{Skipped: true, SkipReason: "auto-refresh is disabled; use --force to refresh manually"}, nil
		}
		interval := time.Duration(existing.Metadata.RefreshIntervalDays) * 24 * time.Hour
		if age := now.Sub(existing.Metadata.LastUpdated); age < interval {
			return &RefreshSummary{
				Skipped:    true,
				SkipReason: fmt.Sprintf("catalog is %d days old, refresh interval is %d days", int(age.Hours()/24), existing.Metadata.RefreshIntervalDays),
			}, nil
		}
	}

	summary := &RefreshSummary{}

	var records []models.ServicePrincipalable
	err = r.Client.ListServicePrincipals(ctx, func(page []models.ServicePrincipalable) error {
		summary.Pages++
		records = append(records, page...)
		message.Info("Fetched page %d (%d service principals so far)", summary.Pages, len(records))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate service principals: %w", err)
	}

	snap := &Snapshot{
		ServicePrincipals: make(map[string]ServicePrincipalRecord),
		Definitions:       NewPermissionDefinitions(),
		Mappings:          make(map[string]ServicePermissionMapping),
		CommonPermissions: make(map[string][]string),
	}

	for _, sp := range records {
		if sp == nil {
			continue
		}
		if !r.includeService(sp, opts) {
			continue
		}

		objectID := deref(sp.GetId())
		key := DeriveServiceKey(deref(sp.GetDisplayName()), objectID)

		// Full overwrite on key collision: last write wins.
		snap.ServicePrincipals[key] = ServicePrincipalRecord{
			ServiceKey:         key,
			AppId:              deref(sp.GetAppId()),
			DisplayName:        deref(sp.GetDisplayName()),
			Description:        deref(sp.GetDescription()),
			Publisher:          deref(sp.GetPublisherName()),
			ServicePrincipalId: objectID,
		}
		summary.Services++

		appNames := r.collectAppRoles(sp, snap.Definitions)
		delNames := r.collectDelegatedScopes(sp, snap.Definitions)

		if len(appNames) == 0 && len(delNames) == 0 {
			// No enabled permissions: no empty shell in the mappings.
			continue
		}

		snap.Mappings[key] = ServicePermissionMapping{Application: appNames, Delegated: delNames}
		if len(appNames) > 0 {
			// The legacy common view carries application names only.
			common := make([]string, len(appNames))
			copy(common, appNames)
			snap.CommonPermissions[key] = common
		}

		summary.ApplicationPermissions += len(appNames)
		summary.DelegatedPermissions += len(delNames)
	}

	summary.UniqueDefinitions = len(snap.Definitions.Application) + len(snap.Definitions.Delegated)

	snap.Index = r.buildIndex(existing, now, opts)

	if err := r.Store.WriteSnapshot(snap); err != nil {
		return nil, err
	}

	if opts.WriteLegacy {
		if err := r.Store.WriteLegacy(materializeLegacy(snap)); err != nil {
			return nil, err
		}
	}

	if r.Cache != nil {
		r.Cache.Invalidate()
		r.Cache.MarkRefreshed(now)
	}

	return summary, nil
}

func (r *Refresher) includeService(sp models.ServicePrincipalable, opts RefreshOptions) bool {
	appID := deref(sp.GetAppId())

	if strings.EqualFold(appID, MicrosoftGraphAppID) {
		return opts.IncludeMicrosoftGraph
	}

	microsoftPublished := strings.Contains(deref(sp.GetPublisherName()), "Microsoft")
	builtinPrefix := strings.HasPrefix(appID, "0000")
	if !microsoftPublished && !builtinPrefix {
		return opts.IncludeCustomApis
	}
	return true
}

func (r *Refresher) collectAppRoles(sp models.ServicePrincipalable, defs *PermissionDefinitions) []string {
	var names []string
	for _, role := range sp.GetAppRoles() {
		if role.GetIsEnabled() == nil || !*role.GetIsEnabled() {
			continue
		}

		id := ""
		if role.GetId() != nil {
			id = role.GetId().String()
		}
		name := deref(role.GetValue())
		if name == "" {
			name = "role_" + id
		}

		// Last write wins when the same name arrives with different
		// metadata; definitions are not diffed.
		defs.Application[name] = PermissionDefinition{
			Name:               name,
			Id:                 id,
			DisplayName:        deref(role.GetDisplayName()),
			Description:        deref(role.GetDescription()),
			AllowedMemberTypes: role.GetAllowedMemberTypes(),
		}
		names = append(names, name)
	}
	return dedupe(names)
}

func (r *Refresher) collectDelegatedScopes(sp models.ServicePrincipalable, defs *PermissionDefinitions) []string {
	var names []string
	for _, scope := range sp.GetOauth2PermissionScopes() {
		if scope.GetIsEnabled() == nil || !*scope.GetIsEnabled() {
			continue
		}

		id := ""
		if scope.GetId() != nil {
			id = scope.GetId().String()
		}
		name := deref(scope.GetValue())
		if name == "" {
			name = "scope_" + id
		}

		defs.Delegated[name] = PermissionDefinition{
			Name:                   name,
			Id:                     id,
			DisplayName:            deref(scope.GetAdminConsentDisplayName()),
			Description:            deref(scope.GetAdminConsentDescription()),
			UserConsentDisplayName: deref(scope.GetUserConsentDisplayName()),
			UserConsentDescription: deref(scope.GetUserConsentDescription()),
			Type:                   deref(scope.GetTypeEscaped()),
		}
		names = append(names, name)
	}
	return dedupe(names)
}

func (r *Refresher) buildIndex(existing *CatalogIndex, now time.Time, opts RefreshOptions) CatalogIndex {
	index := CatalogIndex{
		Metadata: CatalogMetadata{
			LastUpdated:         now,
			RefreshIntervalDays: 30,
			AutoRefreshEnabled:  true,
			Version:             CatalogVersion,
		},
		Configuration: CatalogConfiguration{
			IncludeMicrosoftGraph: opts.IncludeMicrosoftGraph,
			IncludeCustomApis:     opts.IncludeCustomApis,
		},
		Files: DefaultFiles(),
	}

	if existing != nil {
		if existing.Metadata.RefreshIntervalDays > 0 {
			index.Metadata.RefreshIntervalDays = existing.Metadata.RefreshIntervalDays
		}
		index.Metadata.AutoRefreshEnabled = existing.Metadata.AutoRefreshEnabled
		if existing.Files != nil {
			index.Files = existing.Files
		}
	}
	return index
}

// materializeLegacy renders a normalized snapshot into the monolithic
// backward-compatible document, re-inlining the definitions each service
// references.
func materializeLegacy(snap *Snapshot) *LegacyCatalog {
	legacy := &LegacyCatalog{
		Metadata:          snap.Index.Metadata,
		Configuration:     snap.Index.Configuration,
		ServicePrincipals: snap.ServicePrincipals,
		Permissions:       make(map[string]LegacyServicePermissions),
		CommonPermissions: snap.CommonPermissions,
	}

	for key, mapping := range snap.Mappings {
		perms := LegacyServicePermissions{}
		if len(mapping.Application) > 0 {
			perms.Application = make(map[string]PermissionDefinition, len(mapping.Application))
			for _, name := range mapping.Application {
				if def, ok := snap.Definitions.Application[name]; ok {
					perms.Application[name] = def
				}
			}
		}
		if len(mapping.Delegated) > 0 {
			perms.Delegated = make(map[string]PermissionDefinition, len(mapping.Delegated))
			for _, name := range mapping.Delegated {
				if def, ok := snap.Definitions.Delegated[name]; ok {
					perms.Delegated[name] = def
				}
			}
		}
		legacy.Permissions[key] = perms
	}
	return legacy
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// dedupe sorts and removes duplicate names; mapping sets are
// order-irrelevant.
func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	s := u.StringSlice{P: &names}
	u.Sort(s)
	u.Strings(s.P)
	return names
}
