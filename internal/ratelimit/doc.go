// Package ratelimit enforces hourly per-key request budgets with token
// buckets.
package ratelimit
