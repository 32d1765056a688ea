package engine

import (
	"os"
	"path/filepath"
	"strings"
)

const dbFile = "memory.db"

// ResolveSQLitePath returns override when set. Otherwise the first existing
// database among the .mnemo/ directory and $XDG_DATA_HOME/mnemo wins, and
// a new database is placed in the .mnemo/ directory.
func ResolveSQLitePath(override, dir string) string {
	if override != "" {
		return override
	}

	for _, candidate := range sqliteCandidates(dir) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return filepath.Join(dir, dbFile)
}

func sqliteCandidates(dir string) []string {
	candidates := []string{filepath.Join(dir, dbFile)}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "mnemo", dbFile))
	}

	return candidates
}
