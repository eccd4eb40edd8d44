// Package server exposes the studio HTTP API, its documentation pages and
// the metrics endpoint.
//
// Every request passes through request ID assignment, panic recovery, CORS,
// access logging, bearer authentication and, for /api/ routes, rate limiting
// and call tracking before reaching the router.
package server
