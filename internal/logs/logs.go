package logs

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// ConsoleLogger returns a tint-backed slog logger writing to stderr and
// installs it as the process default. Color is dropped when stderr is not
// a terminal.
func ConsoleLogger() *slog.Logger {
	w := os.Stderr

	opts := &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(w.Fd()),
	}

	logger := slog.New(tint.NewHandler(w, opts))
	slog.SetDefault(logger)
	return logger
}

// SetVerbose lowers the default logger's level to debug.
func SetVerbose() {
	w := os.Stderr
	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(w.Fd()),
	})))
}
