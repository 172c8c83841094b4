// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// ParseLevel понимает debug, info, warn, error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New строит tint-логгер; цвет включается только на терминале.
func New(w *os.File, level slog.Leveler) *slog.Logger {
	var out io.Writer = w
	noColor := !isatty.IsTerminal(w.Fd()) && !isatty.IsCygwinTerminal(w.Fd())
	if !noColor {
		out = colorable.NewColorable(w)
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	}))
}

// Setup выставляет логгер по умолчанию и возвращает его вместе с LevelVar.
func Setup(level string) (*slog.Logger, *slog.LevelVar, error) {
	lv := &slog.LevelVar{}
	l, err := ParseLevel(level)
	lv.Set(l)
	logger := New(os.Stderr, lv)
	slog.SetDefault(logger)
	return logger, lv, err
}
