package main

import (
	"log/slog"
	"os"
)

// initLogger installs a text logger on stderr as the slog default.
func initLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}
