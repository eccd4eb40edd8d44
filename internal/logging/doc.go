// Package logging assembles structured slog loggers and formatting helpers used
// across studio services.
//
// It owns the configurable console/JSON handlers, writes a JSON copy of every
// record to the log directory, and exposes context-aware helpers so handlers
// automatically tag log lines with request correlation IDs and the acting user.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
