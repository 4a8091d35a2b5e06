// Package build holds build-time information set by the release pipeline.
package build

// These are set via ldflags by goreleaser.
var (
	Version = "v0.0.0-dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)
