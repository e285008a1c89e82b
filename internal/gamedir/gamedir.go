// Package gamedir prepares game directories and the launcher cache.
package gamedir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// EnvCacheDir overrides the cache root.
const EnvCacheDir = "LAUNCHKIT_CACHE_DIR"

// DirectorySpec specifies a directory to create
type DirectorySpec struct {
	Path string
	Mode uint32
}

// Skeleton is the directory set every game directory carries.
var Skeleton = []DirectorySpec{
	{Path: "versions"},
	{Path: "libraries"},
	{Path: filepath.Join("assets", "indexes")},
	{Path: filepath.Join("assets", "objects")},
}

// CacheRoot returns the root cache directory
func CacheRoot() string {
	if cacheDir := os.Getenv(EnvCacheDir); cacheDir != "" {
		return cacheDir
	}

	switch runtime.GOOS {
	case "darwin":
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, "Library", "Caches", "launchkit")
		}
	case "linux":
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "launchkit")
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".cache", "launchkit")
		}
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "launchkit", "cache")
		}
	}

	return filepath.Join(os.TempDir(), "launchkit", "cache")
}

// LogDir is where game logs of launch attempts are written.
func LogDir() string {
	return filepath.Join(CacheRoot(), "logs")
}

// Ensure creates path and dirs below it. An existing tree is left as is.
func Ensure(path string, dirs []DirectorySpec) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create game directory: %w", err)
	}

	for _, dir := range dirs {
		dirPath := filepath.Join(path, dir.Path)
		mode := dir.Mode
		if mode == 0 {
			mode = 0755
		}

		if err := os.MkdirAll(dirPath, os.FileMode(mode)); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir.Path, err)
		}
	}

	return nil
}
