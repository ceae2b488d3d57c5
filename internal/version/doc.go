// Package version exposes build metadata of the last-changed binary.
//
// Version, Commit and BuildTime are injected with -ldflags at release time.
package version
