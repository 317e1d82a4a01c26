// Package log wraps [log/slog] with the handful of conventions used across
// lgen: a Trace level below Debug, attribute-only logging methods, and a
// colorized text handler for interactive terminals.
//
// A [Logger] is an immutable value. Options passed to [Make] or
// [Logger.Wrap] produce a new handler and never affect loggers that were
// derived earlier, so a Logger may be shared freely between goroutines.
//
//	logger := log.Make(os.Stderr,
//		log.WithLevel(log.LevelDebug),
//		log.WithFormat(log.FormatText),
//	)
//	logger.Debug("parsed file", slog.String("path", path))
//
// The package also maintains a process-wide default logger used by the
// package-level functions ([Debug], [Info], [Warn], [Error]). It is
// reconfigured with [Config], typically once from the command line.
package log
