// Package buildinfo holds identifiers reported by health, analytics and the CLI.
package buildinfo

// ServiceName identifies the service in API responses.
const ServiceName = "ai-content-studio"

// Version is overridden at link time with -ldflags "-X studio/internal/buildinfo.Version=...".
var Version = "2.0.0"
