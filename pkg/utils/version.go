// Package utils holds the build stamp and small string helpers used by the
// mnemo commands.
package utils

// Stamped by the release build with -ldflags -X; see .dagger/build.go.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "unknown"
)
