// Package log configures structured logging for the promptchain CLI using log/slog.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Options selects the level, format and destination of the default logger.
type Options struct {
	Verbose bool
	Quiet   bool
	JSON    bool
	// Writer defaults to os.Stderr.
	Writer io.Writer
	// Session, when set, is attached to every record as "session".
	Session string
}

// Level maps the verbosity flags to a slog level. Quiet wins over verbose.
//
//   - quiet mode:   only WARN and ERROR messages
//   - normal mode:  INFO and above
//   - verbose mode: DEBUG and above
func Level(verbose, quiet bool) slog.Level {
	switch {
	case quiet:
		return slog.LevelWarn
	case verbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Setup builds a logger from opts, installs it as slog.Default and returns it.
func Setup(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: Level(opts.Verbose, opts.Quiet)}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, hopts)
	} else {
		handler = slog.NewTextHandler(w, hopts)
	}
	logger := slog.New(handler)
	if opts.Session != "" {
		logger = logger.With("session", opts.Session)
	}
	slog.SetDefault(logger)
	return logger
}
