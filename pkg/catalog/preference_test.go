package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	index  bool
	legacy bool
}

func (f fakeProber) HasIndex() bool  { return f.index }
func (f fakeProber) HasLegacy() bool { return f.legacy }

func newTestResolver(prober fakeProber, env string) *PreferenceResolver {
	return &PreferenceResolver{
		Store:  prober,
		Getenv: func(string) string { return env },
	}
}

func TestResolveEnvironmentOverride(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"Y", true},
		{"false", false},
		{"0", false},
		{"nonsense", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			// Both formats on disk; the override must win regardless.
			r := newTestResolver(fakeProber{index: true, legacy: true}, tt.value)
			pref := r.Resolve(false)
			assert.Equal(t, tt.expected, pref.UseNormalizedStorage)
			assert.Equal(t, "environment override", pref.Reason)
		})
	}
}

func TestResolveOnlyNormalizedAvailable(t *testing.T) {
	r := newTestResolver(fakeProber{index: true, legacy: false}, "")
	pref := r.Resolve(false)
	assert.True(t, pref.UseNormalizedStorage)
	assert.Equal(t, "only normalized available", pref.Reason)
}

func TestResolveTransitionDefault(t *testing.T) {
	tests := []struct {
		name   string
		prober fakeProber
	}{
		{"both formats present", fakeProber{index: true, legacy: true}},
		{"only legacy present", fakeProber{index: false, legacy: true}},
		{"nothing present", fakeProber{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(tt.prober, "")
			pref := r.Resolve(false)
			assert.False(t, pref.UseNormalizedStorage)
			assert.Equal(t, "transition default", pref.Reason)
		})
	}
}

func TestResolveCachesDecision(t *testing.T) {
	prober := fakeProber{index: true, legacy: false}
	calls := 0
	r := &PreferenceResolver{
		Store: prober,
		Getenv: func(string) string {
			calls++
			return ""
		},
	}

	r.Resolve(false)
	r.Resolve(false)
	assert.Equal(t, 1, calls, "the decision is computed once per process")

	r.Resolve(true)
	assert.Equal(t, 2, calls, "forceRecheck recomputes")
}

func TestPersistedPreference(t *testing.T) {
	dir := t.TempDir()
	r := &PreferenceResolver{
		Store:  fakeProber{index: true, legacy: true},
		Dir:    dir,
		Getenv: func(string) string { return "" },
	}

	require.NoError(t, r.Persist(true))

	pref := r.Resolve(false)
	assert.True(t, pref.UseNormalizedStorage)
	assert.Equal(t, "user preference", pref.Reason)

	// Environment still outranks the persisted choice.
	r.Getenv = func(string) string { return "false" }
	pref = r.Resolve(true)
	assert.False(t, pref.UseNormalizedStorage)
	assert.Equal(t, "environment override", pref.Reason)
}
