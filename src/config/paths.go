package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDirName = "convo"

// DefaultStateDir returns the default directory for runtime state
// (conversation databases), following the XDG Base Directory specification.
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, appDirName)
}

// DefaultConfigPath returns the default location of the config file.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appDirName, "config.json")
}
