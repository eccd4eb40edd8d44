// Package store persists scripts, users, and analytics events.
//
// Two backends implement Store: an in-memory store that can mirror itself to
// a JSON snapshot guarded by a file lock, and a SQLite store built on
// modernc.org/sqlite that writes through on every call.
package store
