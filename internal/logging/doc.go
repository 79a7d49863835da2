// Package logging builds slog loggers with the console and JSON handlers
// burnish emits, plus typed attribute helpers shared across packages.
package logging
