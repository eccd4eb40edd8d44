// Package analytics derives dashboards, usage reports and rankings from the
// stored event log.
package analytics
