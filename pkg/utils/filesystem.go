package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// EnsureDirectoryExists creates a directory and all necessary parent directories
// with proper error handling and logging. It's safe to call multiple times.
func EnsureDirectoryExists(dirPath string) error {
	// Skip empty or current directory paths
	if dirPath == "" || dirPath == "." {
		return nil
	}

	// Convert to absolute path for better error messages
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		// Fall back to relative path if absolute conversion fails
		absPath = dirPath
	}

	// Check if directory already exists
	if info, err := os.Stat(absPath); err == nil {
		if info.IsDir() {
			slog.Debug("directory already exists", "path", absPath)
			return nil
		} else {
			return fmt.Errorf("path %s exists but is not a directory", absPath)
		}
	}

	// Create directory with appropriate permissions
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", absPath, err)
	}

	slog.Debug("created directory", "path", absPath, "permissions", "0755")
	return nil
}

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it over the destination, so readers never observe a
// half-written file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// CopyFile copies a regular file, creating the destination directory if
// needed. Used when migrating catalog data out of a read-only install
// location.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := EnsureDirectoryExists(filepath.Dir(dst)); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Sync()
}
