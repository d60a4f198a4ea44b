package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sable-sec/appregctl/internal/message"
)

// EnvUseNormalizedStorage overrides the storage format decision for the
// process. Truthy values ("1", "true", "yes", "y", case-insensitive)
// select normalized storage; any other non-empty value selects legacy.
const EnvUseNormalizedStorage = "APPREGCTL_USE_NORMALIZED_STORAGE"

// PreferenceFileName persists an explicit user opt-in across sessions.
const PreferenceFileName = "StoragePreference.json"

// formatProber is the slice of the store the resolver needs: cheap
// existence probes for the two formats.
type formatProber interface {
	HasIndex() bool
	HasLegacy() bool
}

// PreferenceResolver decides, once per process, which on-disk format to
// read and write. Getenv is injectable for tests.
type PreferenceResolver struct {
	Store  formatProber
	Dir    string
	Getenv func(string) string

	cached        *StoragePreference
	advisoryShown bool
}

// NewPreferenceResolver builds a resolver over the given store and config
// directory.
func NewPreferenceResolver(store formatProber, dir string) *PreferenceResolver {
	return &PreferenceResolver{Store: store, Dir: dir, Getenv: os.Getenv}
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// Resolve returns the active storage preference, computing it on first
// call and from then on returning the cached decision unless forceRecheck
// is set. It never fails: with no signal at all the transition default
// (legacy) wins.
func (r *PreferenceResolver) Resolve(forceRecheck bool) StoragePreference {
	if r.cached != nil && !forceRecheck {
		return *r.cached
	}

	pref := r.compute()
	r.cached = &pref
	return pref
}

func (r *PreferenceResolver) compute() StoragePreference {
	if value := r.Getenv(EnvUseNormalizedStorage); value != "" {
		return StoragePreference{
			UseNormalizedStorage: isTruthy(value),
			Reason:               "environment override",
		}
	}

	if persisted, ok := r.readPersisted(); ok {
		return StoragePreference{
			UseNormalizedStorage: persisted.UseNormalizedStorage,
			Reason:               "user preference",
		}
	}

	normalizedAvailable := r.Store.HasIndex()
	legacyAvailable := r.Store.HasLegacy()

	if normalizedAvailable && !legacyAvailable {
		return StoragePreference{
			UseNormalizedStorage: true,
			Reason:               "only normalized available",
		}
	}

	if normalizedAvailable && !r.advisoryShown {
		r.advisoryShown = true
		message.Info("Normalized catalog storage is available and will become the default in a future release; set %s=true to opt in now", EnvUseNormalizedStorage)
	}

	return StoragePreference{
		UseNormalizedStorage: false,
		Reason:               "transition default",
	}
}

func (r *PreferenceResolver) readPersisted() (*StoragePreference, bool) {
	if r.Dir == "" {
		return nil, false
	}
	pref, ok, err := readJSONFile[StoragePreference](filepath.Join(r.Dir, PreferenceFileName))
	if err != nil || !ok {
		// A broken preference file must not block catalog access.
		return nil, false
	}
	return pref, true
}

// Persist records the user's format choice in the config directory and
// drops the cached decision so the next Resolve sees it.
func (r *PreferenceResolver) Persist(useNormalized bool) error {
	pref := StoragePreference{UseNormalizedStorage: useNormalized, Reason: "user preference"}
	if err := writeJSONFile(filepath.Join(r.Dir, PreferenceFileName), pref); err != nil {
		return err
	}
	r.cached = nil
	return nil
}
