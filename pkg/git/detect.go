// Package git names the project the CLI runs in, for readable session ids.
package git

import (
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const detectTimeout = 5 * time.Second

var unsafeChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// RepoName returns the base name of the git work tree containing dir, or of
// dir itself outside a repository. The result is lowercased with runs of
// other characters replaced by "-", so it can prefix an id. Empty dir means
// the working directory.
func RepoName(ctx context.Context, dir string) string {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	name := ""
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	if out, err := cmd.Output(); err == nil {
		if top := strings.TrimSpace(string(out)); top != "" {
			name = filepath.Base(top)
		}
	}

	if name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return ""
		}
		name = filepath.Base(abs)
	}

	return strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
