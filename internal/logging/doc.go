// Package logging builds the slog loggers used by the prachand binaries.
package logging
