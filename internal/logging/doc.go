// Package logging centralizes slog construction for the daemon and CLI.
// It provides a human-oriented console handler, a JSON handler for log files,
// attribute helpers, and the standardized field keys used across components.
package logging
