// Mnemo CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/mnemo/internal/dagger"
)

// Mnemo is the main module for the Mnemo CI/CD pipeline
type Mnemo struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Mnemo CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp", ".mnemo"]
	source *dagger.Directory,
) *Mnemo {
	return &Mnemo{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc,
// libsqlite3-dev, CGO enabled, and the project source mounted. The SQLite
// store and the sqlite-vec bindings both need CGO.
//
// It is the shared foundation for tests, builds, and linting.
func (m *Mnemo) goContainer() *dagger.Container {
	return m.goContainerFor("")
}

// goContainerFor is goContainer on the given platform; empty means the
// engine's own.
func (m *Mnemo) goContainerFor(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+string(platform))).
		WithWorkdir("/src").
		WithDirectory("/src", m.Source)
}

// Test runs the mnemo unit tests via "go test"
func (m *Mnemo) Test(ctx context.Context) (string, error) {
	return m.goContainer().
		WithExec([]string{"go", "test", "-v", "-tags", "sqlite_fts5", "./..."}).
		Stdout(ctx)
}
