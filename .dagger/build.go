package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/mnemo/internal/dagger"
)

// Build and return directory of go binaries.
//
// The binaries link SQLite through CGO, so each architecture is built
// natively in a container of its own platform rather than cross-compiled.
func (m *Mnemo) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	goarches := []string{"amd64", "arm64"}

	// create empty directory to put build artifacts
	outputs := dag.Directory()

	for _, goarch := range goarches {
		path := fmt.Sprintf("linux/%s/", goarch)

		build := m.goContainerFor(dagger.Platform("linux/" + goarch)).
			WithExec([]string{"go", "build", "-tags", "sqlite_fts5", "-ldflags", ldflags, "-o", path, "./cli/mnemo"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (m *Mnemo) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/mnemo/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/mnemo/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/mnemo/pkg/utils.Buildtime=%s'", buildtime),
	}

	return m.Build(ctx, strings.Join(ldflags, " "))
}
