package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/ggoodman/govdata-mcp/internal/logctx"
)

// newLogger writes to stderr in every mode; stdout may carry protocol
// frames. Terminals get text, everything else JSON.
func newLogger(level slog.Level) *slog.Logger {
	return newLoggerTo(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)
}

func newLoggerTo(w io.Writer, text bool, level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if text {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(logctx.Handler{Handler: handler})
}
