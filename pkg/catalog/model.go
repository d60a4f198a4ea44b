// Package catalog implements the local permission-catalog cache: a
// refreshable on-disk mirror of the tenant's service principals and their
// application/delegated permissions, stored in either a legacy monolithic
// document or a normalized index-plus-satellites layout.
package catalog

import "time"

// PermissionKind distinguishes application permissions (app roles) from
// delegated permissions (OAuth2 scopes).
type PermissionKind string

const (
	KindApplication PermissionKind = "Application"
	KindDelegated   PermissionKind = "Delegated"
)

// Component names one independently loadable piece of the catalog.
type Component string

const (
	ComponentIndex                     Component = "Index"
	ComponentServicePrincipals         Component = "ServicePrincipals"
	ComponentPermissionDefinitions     Component = "PermissionDefinitions"
	ComponentServicePermissionMappings Component = "ServicePermissionMappings"
	ComponentCommonPermissions         Component = "LegacyCommonPermissions"
)

// On-disk filenames. The index is the only well-known name in the
// normalized layout; satellite names are resolved through the index's
// Files map.
const (
	IndexFileName  = "KnownServicesIndex.json"
	LegacyFileName = "KnownServices.json"

	ServicePrincipalsFileName = "ServicePrincipals.json"
	PermissionDefsFileName    = "PermissionDefinitions.json"
	MappingsFileName          = "ServicePermissionMappings.json"
	CommonPermissionsFileName = "CommonPermissions.json"
)

// CatalogVersion is written into new indexes; MinimumCatalogVersion is the
// oldest index the normalized reader accepts.
const (
	CatalogVersion        = "3.0"
	MinimumCatalogVersion = "3.0"
)

// ServicePrincipalRecord is one catalog entry for a directory service
// principal. ServiceKey is the primary lookup key and is unique within a
// catalog snapshot; AppId should be unique but is not enforced.
type ServicePrincipalRecord struct {
	ServiceKey         string `json:"ServiceKey"`
	AppId              string `json:"AppId"`
	DisplayName        string `json:"DisplayName"`
	Description        string `json:"Description,omitempty"`
	Publisher          string `json:"Publisher,omitempty"`
	ServicePrincipalId string `json:"ServicePrincipalId,omitempty"`
}

// PermissionDefinition describes one permission exposed by a service. The
// kind is implied by which map the definition is stored in: application
// definitions carry AllowedMemberTypes, delegated ones carry the
// user-consent fields and Type.
type PermissionDefinition struct {
	Name        string `json:"Name"`
	Id          string `json:"Id"`
	DisplayName string `json:"DisplayName,omitempty"`
	Description string `json:"Description,omitempty"`

	AllowedMemberTypes []string `json:"AllowedMemberTypes,omitempty"`

	UserConsentDisplayName string `json:"UserConsentDisplayName,omitempty"`
	UserConsentDescription string `json:"UserConsentDescription,omitempty"`
	Type                   string `json:"Type,omitempty"`
}

// PermissionDefinitions holds every unique permission definition in the
// catalog, deduplicated by (kind, name). This deduplication is the reason
// the normalized format exists.
type PermissionDefinitions struct {
	Application map[string]PermissionDefinition `json:"Application"`
	Delegated   map[string]PermissionDefinition `json:"Delegated"`
}

// NewPermissionDefinitions returns an empty, fully allocated definitions
// document.
func NewPermissionDefinitions() *PermissionDefinitions {
	return &PermissionDefinitions{
		Application: make(map[string]PermissionDefinition),
		Delegated:   make(map[string]PermissionDefinition),
	}
}

// ServicePermissionMapping lists the permission names one service exposes,
// split by kind. Order is irrelevant; names are unique within each list.
// Every name must resolve against PermissionDefinitions for its kind.
type ServicePermissionMapping struct {
	Application []string `json:"Application"`
	Delegated   []string `json:"Delegated"`
}

// CatalogMetadata records when and how the catalog was last refreshed.
type CatalogMetadata struct {
	LastUpdated         time.Time `json:"LastUpdated"`
	RefreshIntervalDays int       `json:"RefreshIntervalDays"`
	AutoRefreshEnabled  bool      `json:"AutoRefreshEnabled"`
	Version             string    `json:"Version"`
}

// CatalogConfiguration describes the scope of the last refresh. These are
// a record of what the snapshot contains, not a live filter.
type CatalogConfiguration struct {
	IncludeMicrosoftGraph bool `json:"IncludeMicrosoftGraph"`
	IncludeCustomApis     bool `json:"IncludeCustomApis"`
}

// CatalogIndex is the root document of the normalized layout. Satellite
// filenames are resolved through Files.
type CatalogIndex struct {
	Metadata      CatalogMetadata      `json:"Metadata"`
	Configuration CatalogConfiguration `json:"Configuration"`
	Files         map[Component]string `json:"Files"`
}

// DefaultFiles returns the standard component-to-filename mapping written
// by the structure initializer.
func DefaultFiles() map[Component]string {
	return map[Component]string{
		ComponentServicePrincipals:         ServicePrincipalsFileName,
		ComponentPermissionDefinitions:     PermissionDefsFileName,
		ComponentServicePermissionMappings: MappingsFileName,
		ComponentCommonPermissions:         CommonPermissionsFileName,
	}
}

// LegacyServicePermissions is the per-service permission block of the
// legacy document, with full definitions inlined per service.
type LegacyServicePermissions struct {
	Application map[string]PermissionDefinition `json:"Application,omitempty"`
	Delegated   map[string]PermissionDefinition `json:"Delegated,omitempty"`
}

// LegacyCatalog is the backward-compatible single-file catalog shape.
// CommonPermissions only ever holds application permission names; the
// delegated side is intentionally absent from that view.
type LegacyCatalog struct {
	Metadata          CatalogMetadata                     `json:"Metadata"`
	Configuration     CatalogConfiguration                `json:"Configuration"`
	ServicePrincipals map[string]ServicePrincipalRecord   `json:"ServicePrincipals"`
	Permissions       map[string]LegacyServicePermissions `json:"Permissions,omitempty"`
	CommonPermissions map[string][]string                 `json:"CommonPermissions"`
}

// StoragePreference is the per-process decision about which on-disk
// format to use. Reason is diagnostic only.
type StoragePreference struct {
	UseNormalizedStorage bool   `json:"UseNormalizedStorage"`
	Reason               string `json:"Reason,omitempty"`
}
