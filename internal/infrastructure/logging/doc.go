// Package logging provides the structured logger used across Slotline.
//
// It is a thin wrapper over log/slog configured from config.LoggingConfig.
// Packages that only need to emit logs should depend on their own small
// Logger interface rather than this concrete type.
package logging
