// Package services defines shared utilities consumed by the domain services
// and the HTTP layer.
//
// Key responsibilities:
//   - Context helpers that stamp request correlation IDs and the authenticated
//     user for logging and authorization.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent HTTP statuses and client-safe messages.
//
// Use these helpers when wiring new service logic so error handling and
// observability stay uniform across handlers.
package services
