package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DBFile is the database file name inside a .memtrace directory.
const DBFile = "traces.db"

// GlobalMemtracePath returns the path to the global .memtrace directory.
// On Unix: ~/.memtrace
// On Windows: %USERPROFILE%\.memtrace
func GlobalMemtracePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".memtrace"), nil
}

// LocalMemtracePath returns the path to the .memtrace directory under root.
func LocalMemtracePath(root string) string {
	return filepath.Join(root, ".memtrace")
}

// DefaultDBPath returns the run catalog path for a project root, or the
// global one when root is empty.
func DefaultDBPath(root string) (string, error) {
	if root != "" {
		return filepath.Join(LocalMemtracePath(root), DBFile), nil
	}
	global, err := GlobalMemtracePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(global, DBFile), nil
}
