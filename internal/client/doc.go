// Package client is the HTTP client the studio CLI uses to talk to a running
// server.
package client
