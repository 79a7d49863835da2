// Package version carries the build version stamped in via -ldflags.
package version

// Version is overridden at build time.
var Version = "dev"
