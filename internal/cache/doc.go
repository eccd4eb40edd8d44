// Package cache holds short-lived encoded responses for read endpoints.
package cache
