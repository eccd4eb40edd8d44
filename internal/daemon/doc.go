// Package daemon coordinates the long-running studio process.
//
// It wires configuration, storage, the generation and analytics services and
// the HTTP server into a single lifecycle with flock-based locking to prevent
// multiple instances. Background loops flush the memory snapshot and sweep
// idle rate limiter buckets.
//
// Keep orchestration logic here: request handling lives in the server package
// and domain rules in their respective packages while the daemon focuses on
// startup, shutdown, and high level coordination.
package daemon
