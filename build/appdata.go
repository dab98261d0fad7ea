package build

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDir returns the directory chunkerd/chunkerc use for config-dir state:
// the gzip-compressed per-repo state files and any daemon-local settings.
// It honors CHUNKER_DATA_DIR before falling back to the per-OS default.
//
// Linux:   $XDG_CONFIG_HOME/chunker if set, else $HOME/.config/chunker
// MacOS:   $HOME/Library/Application Support/chunker
// Windows: %LOCALAPPDATA%\chunker
func ConfigDir() string {
	if dir := os.Getenv(chunkerDataDir); dir != "" {
		return dir
	}
	return defaultConfigDir()
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "chunker")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "chunker")
	default:
		home := os.Getenv("HOME")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "chunker")
		}
		return filepath.Join(home, ".config", "chunker")
	}
}

// StateFilePath returns the path of a repo's private state file within the
// config directory.
func StateFilePath(uuid string) string {
	return filepath.Join(ConfigDir(), uuid+".state")
}

// EnsureConfigDir creates the config directory (and any missing parents) with
// owner-only permissions if it does not already exist.
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0700)
}
