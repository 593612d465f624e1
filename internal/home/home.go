package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the shopsetup home directory.
	DefaultDirName = ".shopsetup"

	// UploadsDirName is the subdirectory for scratch copies of uploaded
	// files (catalog CSVs, theme archives, brand images).
	UploadsDirName = "uploads"

	// RunsDirName is the subdirectory for persisted run state snapshots.
	RunsDirName = "runs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the shopsetup home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.shopsetup).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// UploadsPath returns the scratch directory for uploaded files.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, UploadsDirName)
}

// RunsPath returns the directory holding run state snapshots.
func (d *Dir) RunsPath() string {
	return filepath.Join(d.path, RunsDirName)
}

// RunStatePath returns the snapshot file for a run.
func (d *Dir) RunStatePath(runID string) string {
	return filepath.Join(d.RunsPath(), runID+".json")
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.UploadsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create uploads directory: %w", err)
	}
	if err := os.MkdirAll(d.RunsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ScratchDir creates a fresh scratch directory under uploads for one
// request's files. The caller removes it when done.
func (d *Dir) ScratchDir(pattern string) (string, error) {
	if err := os.MkdirAll(d.UploadsPath(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}
	dir, err := os.MkdirTemp(d.UploadsPath(), pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return dir, nil
}
