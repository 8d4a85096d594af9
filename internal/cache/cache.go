package cache

import (
	"os"
	"path/filepath"
)

// State handles the soundrip state directory
type State struct{}

// StateManager creates a new state directory manager
func StateManager() *State {
	return &State{}
}

// GetStateDir returns the directory holding soundrip's own files
func (m *State) GetStateDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".soundrip")
	}
	return filepath.Join(homeDir, ".soundrip")
}

// GetCatalogPath returns the default path of the extraction catalog
func (m *State) GetCatalogPath() string {
	return filepath.Join(m.GetStateDir(), "catalog.db")
}
