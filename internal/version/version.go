// Package version holds the build version, overridden at link time via
// -ldflags "-X github.com/evalscribe/evalscribe/internal/version.Version=...".
package version

var Version = "0.1.0-dev"
