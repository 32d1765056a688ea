// Package dotdir manages the .mnemo/ and ~/.mnemo directories.
//
// The directory holds config.toml, the memory database, the MEMORY.md digest
// and the state of the session the CLI is currently recording.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const dirName = ".mnemo"

// Manager resolves the mnemo directory and the state files kept in it.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the .mnemo/ directory to use, creating
// it when missing. Order of precedence:
//  1. Provided override
//  2. Nearest .mnemo/ dir in the working directory or any parent, so memory
//     stays scoped to a project from anywhere inside it
//  3. Home ~/.mnemo/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	dir := overrideDir

	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = nearest(cwd)
	}

	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating mnemo directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// nearest walks from start towards the filesystem root and returns the first
// .mnemo/ directory it finds, or "".
func nearest(start string) string {
	dir := start
	for {
		candidate := filepath.Join(dir, dirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
