package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedResolver(installDir, userDir string) *PathResolver {
	return &PathResolver{
		InstallDir: func() (string, error) { return installDir, nil },
		UserDir:    func() (string, error) { return userDir, nil },
	}
}

func TestActivePrefersUserDir(t *testing.T) {
	installDir := t.TempDir()
	userDir := filepath.Join(t.TempDir(), "AppRegCtl", "Config")

	r := fixedResolver(installDir, userDir)
	active, err := r.Active(true)
	require.NoError(t, err)
	assert.Equal(t, userDir, active)
	assert.DirExists(t, userDir)
}

func TestActiveMigratesFromPackagedInstall(t *testing.T) {
	installDir := filepath.Join(t.TempDir(), "opt", "appregctl")
	require.NoError(t, os.MkdirAll(installDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, LegacyFileName), []byte(`{"ServicePrincipals":{}}`), 0644))

	userDir := filepath.Join(t.TempDir(), "Config")

	r := fixedResolver(installDir, userDir)
	active, err := r.Active(true)
	require.NoError(t, err)
	assert.Equal(t, userDir, active)
	assert.FileExists(t, filepath.Join(userDir, LegacyFileName), "catalog shipped with a packaged install is copied to the user dir")
}

func TestActiveDoesNotMigrateFromPlainDir(t *testing.T) {
	installDir := filepath.Join(t.TempDir(), "workdir")
	require.NoError(t, os.MkdirAll(installDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, LegacyFileName), []byte(`{}`), 0644))

	userDir := filepath.Join(t.TempDir(), "Config")

	r := fixedResolver(installDir, userDir)
	_, err := r.Active(true)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(userDir, LegacyFileName))
}

func TestActiveMigrationKeepsExistingUserFile(t *testing.T) {
	installDir := filepath.Join(t.TempDir(), "opt", "appregctl")
	require.NoError(t, os.MkdirAll(installDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, LegacyFileName), []byte(`{"from":"install"}`), 0644))

	userDir := filepath.Join(t.TempDir(), "Config")
	require.NoError(t, os.MkdirAll(userDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, LegacyFileName), []byte(`{"from":"user"}`), 0644))

	r := fixedResolver(installDir, userDir)
	_, err := r.Active(true)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(userDir, LegacyFileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"user"}`, string(data), "existing user data is never overwritten by migration")
}

func TestActiveFailsWhenNothingResolves(t *testing.T) {
	r := &PathResolver{
		InstallDir: func() (string, error) { return "", fmt.Errorf("no executable path") },
		UserDir:    func() (string, error) { return "", fmt.Errorf("no user profile") },
	}

	_, err := r.Active(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot determine catalog root")
}

func TestActiveIsMemoized(t *testing.T) {
	calls := 0
	userDir := t.TempDir()
	r := &PathResolver{
		InstallDir: func() (string, error) { return "", fmt.Errorf("unavailable") },
		UserDir: func() (string, error) {
			calls++
			return userDir, nil
		},
	}

	first, err := r.Active(false)
	require.NoError(t, err)
	second, err := r.Active(false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestCustomPathValidation(t *testing.T) {
	r := NewPathResolver()

	_, err := r.Custom("", false)
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "custom")
	resolved, err := r.Custom(dir, true)
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)
	assert.DirExists(t, dir)
}

func TestLooksPackaged(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/opt/appregctl", true},
		{"/usr/local/bin", true},
		{`C:\Program Files\AppRegCtl`, true},
		{"/home/dev/src/appregctl", false},
		{"/tmp/build", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, looksPackaged(tt.path))
		})
	}
}
