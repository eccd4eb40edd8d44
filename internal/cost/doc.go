// Package cost reports per-user generation spend and applies provider
// optimizations.
package cost
