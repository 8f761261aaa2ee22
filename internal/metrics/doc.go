// Package metrics keeps named process-lifetime counters for key lifecycle
// and session events and renders them as a diagnostics report.
package metrics
