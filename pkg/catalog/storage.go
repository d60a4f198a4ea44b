package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/mod/semver"

	"github.com/sable-sec/appregctl/pkg/utils"
)

// refreshMarkerName is created before a refresh's write sequence and
// removed only after every file landed. Its presence at load time means a
// previous refresh died mid-write and the satellites may be inconsistent.
const refreshMarkerName = ".refresh-in-progress"

// Store is the read side of catalog persistence. All readers distinguish
// "absent" (ok == false, no error) from real failures, because callers use
// absence as an availability probe. The Cache loads through this
// interface; tests substitute a counting stub.
type Store interface {
	ReadIndex() (*CatalogIndex, bool, error)
	ReadServicePrincipals(filename string) (map[string]ServicePrincipalRecord, bool, error)
	ReadPermissionDefinitions(filename string) (*PermissionDefinitions, bool, error)
	ReadMappings(filename string) (map[string]ServicePermissionMapping, bool, error)
	ReadCommonPermissions(filename string) (map[string][]string, bool, error)
	ReadLegacy() (*LegacyCatalog, bool, error)
}

// DirStore reads and writes catalog documents in a single directory.
type DirStore struct {
	Dir string
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{Dir: dir}
}

func readJSONFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &v, true, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return utils.WriteFileAtomic(path, append(data, '\n'))
}

// ReadIndex loads the normalized index. An index whose version predates
// MinimumCatalogVersion is reported as unavailable, with a warning, so
// callers fall back rather than misread a newer-schema file.
func (s *DirStore) ReadIndex() (*CatalogIndex, bool, error) {
	index, ok, err := readJSONFile[CatalogIndex](filepath.Join(s.Dir, IndexFileName))
	if err != nil || !ok {
		return nil, false, err
	}

	if !versionSupported(index.Metadata.Version) {
		slog.Warn("normalized catalog index version is below the supported minimum",
			"version", index.Metadata.Version, "minimum", MinimumCatalogVersion)
		return nil, false, nil
	}

	if index.Files == nil {
		index.Files = DefaultFiles()
	}

	if s.HasRefreshMarker() {
		slog.Warn("a previous catalog refresh did not complete; satellite files may be inconsistent, re-run refresh")
	}

	return index, true, nil
}

func versionSupported(version string) bool {
	v := "v" + version
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, "v"+MinimumCatalogVersion) >= 0
}

func (s *DirStore) ReadServicePrincipals(filename string) (map[string]ServicePrincipalRecord, bool, error) {
	doc, ok, err := readJSONFile[map[string]ServicePrincipalRecord](filepath.Join(s.Dir, filename))
	if err != nil || !ok {
		return nil, ok, err
	}
	return *doc, true, nil
}

func (s *DirStore) ReadPermissionDefinitions(filename string) (*PermissionDefinitions, bool, error) {
	doc, ok, err := readJSONFile[PermissionDefinitions](filepath.Join(s.Dir, filename))
	if err != nil || !ok {
		return nil, ok, err
	}
	if doc.Application == nil {
		doc.Application = make(map[string]PermissionDefinition)
	}
	if doc.Delegated == nil {
		doc.Delegated = make(map[string]PermissionDefinition)
	}
	return doc, true, nil
}

func (s *DirStore) ReadMappings(filename string) (map[string]ServicePermissionMapping, bool, error) {
	doc, ok, err := readJSONFile[map[string]ServicePermissionMapping](filepath.Join(s.Dir, filename))
	if err != nil || !ok {
		return nil, ok, err
	}
	return *doc, true, nil
}

func (s *DirStore) ReadCommonPermissions(filename string) (map[string][]string, bool, error) {
	doc, ok, err := readJSONFile[map[string][]string](filepath.Join(s.Dir, filename))
	if err != nil || !ok {
		return nil, ok, err
	}
	return *doc, true, nil
}

// ReadLegacy loads the monolithic document. Missing optional sections
// come back as empty maps, not errors.
func (s *DirStore) ReadLegacy() (*LegacyCatalog, bool, error) {
	doc, ok, err := readJSONFile[LegacyCatalog](filepath.Join(s.Dir, LegacyFileName))
	if err != nil || !ok {
		return nil, ok, err
	}
	if doc.ServicePrincipals == nil {
		doc.ServicePrincipals = make(map[string]ServicePrincipalRecord)
	}
	if doc.CommonPermissions == nil {
		doc.CommonPermissions = make(map[string][]string)
	}
	return doc, true, nil
}

// HasIndex probes for the normalized index file without parsing it.
func (s *DirStore) HasIndex() bool {
	_, err := os.Stat(filepath.Join(s.Dir, IndexFileName))
	return err == nil
}

// HasLegacy probes for the legacy file without parsing it.
func (s *DirStore) HasLegacy() bool {
	_, err := os.Stat(filepath.Join(s.Dir, LegacyFileName))
	return err == nil
}

// HasRefreshMarker reports whether an interrupted refresh left its
// in-progress marker behind.
func (s *DirStore) HasRefreshMarker() bool {
	_, err := os.Stat(filepath.Join(s.Dir, refreshMarkerName))
	return err == nil
}

// Snapshot is one complete normalized catalog as produced by a refresh.
type Snapshot struct {
	Index             CatalogIndex
	ServicePrincipals map[string]ServicePrincipalRecord
	Definitions       *PermissionDefinitions
	Mappings          map[string]ServicePermissionMapping
	CommonPermissions map[string][]string
}

// WriteSnapshot persists a full normalized catalog. Each file is written
// via temp-file-and-rename; the whole sequence is bracketed by the
// refresh marker so a crash between files is detectable. Satellites land
// before the index, which makes the index the commit point.
func (s *DirStore) WriteSnapshot(snap *Snapshot) error {
	markerPath := filepath.Join(s.Dir, refreshMarkerName)
	if err := os.WriteFile(markerPath, []byte(snap.Index.Metadata.LastUpdated.Format("2006-01-02T15:04:05Z07:00")+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write refresh marker: %w", err)
	}

	files := snap.Index.Files
	if files == nil {
		files = DefaultFiles()
		snap.Index.Files = files
	}

	writes := []struct {
		name string
		doc  any
	}{
		{files[ComponentServicePrincipals], snap.ServicePrincipals},
		{files[ComponentPermissionDefinitions], snap.Definitions},
		{files[ComponentServicePermissionMappings], snap.Mappings},
		{files[ComponentCommonPermissions], snap.CommonPermissions},
		{IndexFileName, snap.Index},
	}
	for _, w := range writes {
		if err := writeJSONFile(filepath.Join(s.Dir, w.name), w.doc); err != nil {
			return err
		}
	}

	if err := os.Remove(markerPath); err != nil {
		return fmt.Errorf("failed to clear refresh marker: %w", err)
	}
	return nil
}

// WriteLegacy persists the monolithic backward-compatible document.
func (s *DirStore) WriteLegacy(doc *LegacyCatalog) error {
	return writeJSONFile(filepath.Join(s.Dir, LegacyFileName), doc)
}

// InitResult reports what the structure initializer did and what it
// refused to touch.
type InitResult struct {
	Created  []string
	Existing []string
}

// InitializeStructure creates an empty normalized catalog: the index plus
// the four satellite documents. Existing files are left alone unless
// force is set; they are reported so the caller can decide.
func (s *DirStore) InitializeStructure(force bool) (*InitResult, error) {
	if err := utils.EnsureDirectoryExists(s.Dir); err != nil {
		return nil, err
	}

	index := CatalogIndex{
		Metadata: CatalogMetadata{
			RefreshIntervalDays: 30,
			AutoRefreshEnabled:  true,
			Version:             CatalogVersion,
		},
		Files: DefaultFiles(),
	}

	empty := &Snapshot{
		Index:             index,
		ServicePrincipals: make(map[string]ServicePrincipalRecord),
		Definitions:       NewPermissionDefinitions(),
		Mappings:          make(map[string]ServicePermissionMapping),
		CommonPermissions: make(map[string][]string),
	}

	writes := []struct {
		name string
		doc  any
	}{
		{IndexFileName, empty.Index},
		{ServicePrincipalsFileName, empty.ServicePrincipals},
		{PermissionDefsFileName, empty.Definitions},
		{MappingsFileName, empty.Mappings},
		{CommonPermissionsFileName, empty.CommonPermissions},
	}

	result := &InitResult{}
	for _, w := range writes {
		path := filepath.Join(s.Dir, w.name)
		if _, err := os.Stat(path); err == nil && !force {
			result.Existing = append(result.Existing, w.name)
			continue
		}
		if err := writeJSONFile(path, w.doc); err != nil {
			return result, err
		}
		result.Created = append(result.Created, w.name)
	}

	return result, nil
}
