// Package app wires devwarm's components together and provides the entry
// points shared by the CLI commands and the OS service.
package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the file searched for when no --config is given.
const ConfigFileName = "devwarm.yaml"

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/devwarm/devwarm.yaml → ~/.config/devwarm/devwarm.yaml → ./devwarm.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "devwarm", ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "devwarm", ConfigFileName))
	}

	candidates = append(candidates, ConfigFileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/devwarm if set, otherwise ~/.local/share/devwarm per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "devwarm")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "devwarm")
}

// DefaultStatePath is the run store used when the config names none.
func DefaultStatePath() string {
	return filepath.Join(DefaultDataDir(), "state.db")
}
