package skiff

import "log/slog"

// nopLogger discards all log output. Used wherever a caller does not supply
// a logger, so components never need nil checks.
func nopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
