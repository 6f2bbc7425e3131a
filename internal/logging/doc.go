// Package logging assembles structured slog loggers and formatting helpers used
// across ffpipe.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so run code can tag log lines with
// the run identifier. The package also provides a no-op logger for library
// packages and tests that are handed no logger.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same keys.
package logging
