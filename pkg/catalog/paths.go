package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sable-sec/appregctl/pkg/utils"
)

const productConfigDir = "AppRegCtl"

// PathResolver determines where catalog files live. The install location
// sits alongside the binary and is typically read-only after a packaged
// install; the user location is the per-user config root. Both strategies
// are injectable for tests.
type PathResolver struct {
	InstallDir func() (string, error)
	UserDir    func() (string, error)

	activeDir string
}

// NewPathResolver returns a resolver using the running executable's
// directory and the platform user config root.
func NewPathResolver() *PathResolver {
	return &PathResolver{
		InstallDir: func() (string, error) {
			exe, err := os.Executable()
			if err != nil {
				return "", fmt.Errorf("cannot determine install root: %w", err)
			}
			return filepath.Dir(exe), nil
		},
		UserDir: func() (string, error) {
			root, err := os.UserConfigDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine user config root: %w", err)
			}
			return filepath.Join(root, productConfigDir, "Config"), nil
		},
	}
}

// Install resolves the install-default directory.
func (r *PathResolver) Install(createIfMissing bool) (string, error) {
	dir, err := r.InstallDir()
	if err != nil {
		return "", err
	}
	if createIfMissing {
		if err := utils.EnsureDirectoryExists(dir); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// User resolves the per-user config directory.
func (r *PathResolver) User(createIfMissing bool) (string, error) {
	dir, err := r.UserDir()
	if err != nil {
		return "", err
	}
	if createIfMissing {
		if err := utils.EnsureDirectoryExists(dir); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// Custom validates and optionally creates a caller-supplied directory.
func (r *PathResolver) Custom(path string, createIfMissing bool) (string, error) {
	if path == "" {
		return "", fmt.Errorf("custom config path is empty")
	}
	if createIfMissing {
		if err := utils.EnsureDirectoryExists(path); err != nil {
			return "", err
		}
	}
	return path, nil
}

// packagedInstallPatterns mark install locations managed by a package
// manager, which are assumed read-only.
var packagedInstallPatterns = []string{
	"/usr/lib",
	"/usr/local",
	"/opt/",
	"/nix/store",
	"program files",
	"cellar",
	"scoop/apps",
	"chocolatey",
	"windowspowershell/modules",
}

func looksPackaged(path string) bool {
	normalized := strings.ToLower(filepath.ToSlash(path))
	for _, pattern := range packagedInstallPatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

// catalogFileNames are candidates for migration from the install location.
var catalogFileNames = []string{
	LegacyFileName,
	IndexFileName,
	ServicePrincipalsFileName,
	PermissionDefsFileName,
	MappingsFileName,
	CommonPermissionsFileName,
}

// Active returns the directory catalog operations should use. The user
// location is preferred; on first resolution, catalog files shipped inside
// a packaged (read-only) install location are copied to the user location.
// When no resolution strategy succeeds the error says so; there is no
// silent fallback directory.
func (r *PathResolver) Active(createIfMissing bool) (string, error) {
	if r.activeDir != "" {
		return r.activeDir, nil
	}

	userDir, userErr := r.UserDir()
	installDir, installErr := r.InstallDir()

	if userErr != nil && installErr != nil {
		return "", fmt.Errorf("cannot determine catalog root: user config: %v; install: %v", userErr, installErr)
	}

	if userErr != nil {
		// No user profile available; the install dir is all we have.
		r.activeDir = installDir
		return r.activeDir, nil
	}

	if createIfMissing {
		if err := utils.EnsureDirectoryExists(userDir); err != nil {
			return "", err
		}
	}

	if installErr == nil && looksPackaged(installDir) {
		r.migrate(installDir, userDir)
	}

	r.activeDir = userDir
	return r.activeDir, nil
}

// migrate copies catalog files that exist in the packaged install location
// but not yet in the user location. Failures are logged and skipped; a
// missed migration only costs a refresh.
func (r *PathResolver) migrate(installDir, userDir string) {
	for _, name := range catalogFileNames {
		src := filepath.Join(installDir, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(userDir, name)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := utils.CopyFile(src, dst); err != nil {
			slog.Warn("failed to migrate catalog file from install location", "file", name, "error", err)
			continue
		}
		slog.Info("migrated catalog file to user config directory", "file", name)
	}
}
