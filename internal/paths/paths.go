// Package paths provides centralized path resolution for voxpaste.
// This package has NO internal imports (only stdlib) to avoid import cycles.
// All functions return errors to allow callers to log appropriately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	baseDirName    = ".voxpaste"
	configFileName = "voxpaste.json"
)

// BaseDir returns the voxpaste base directory (~/.voxpaste).
// VOXPASTE_HOME overrides it.
func BaseDir() (string, error) {
	if dir := os.Getenv("VOXPASTE_HOME"); dir != "" {
		return ExpandTilde(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, baseDirName), nil
}

// DataPath returns a path within the voxpaste data directory (~/.voxpaste/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active voxpaste.json path.
// Priority: ./voxpaste.json (current dir) > ~/.voxpaste/voxpaste.json
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	if _, err := os.Stat(configFileName); err == nil {
		absPath, err := filepath.Abs(configFileName)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	globalPath, err := DataPath(configFileName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", nil
}

// DefaultConfigPath returns the default location for new configs (~/.voxpaste/voxpaste.json).
func DefaultConfigPath() (string, error) {
	return DataPath(configFileName)
}

// DefaultModelsDir returns where whisper model files are expected (~/.voxpaste/models).
func DefaultModelsDir() (string, error) {
	return DataPath("models")
}

// DefaultVocabularyPath returns the recognition vocabulary file (~/.voxpaste/vocabulary.yaml).
func DefaultVocabularyPath() (string, error) {
	return DataPath("vocabulary.yaml")
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
