package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is below [slog.LevelDebug] and is used for per-segment
// send and discard events, which are too frequent to be useful at
// debug level on a lossy connection with many retransmissions.
const LevelTrace slog.Level = slog.LevelDebug - 4

// LogEnabled reports whether l would emit a record at lvl. l may be nil.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// LogAttrs is a nil-safe wrapper around [slog.Logger.LogAttrs] used by every
// package logger in this module so callers can pass a nil *slog.Logger to
// mean "discard logs" without a nil check at every call site.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
