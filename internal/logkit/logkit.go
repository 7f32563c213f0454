// Package logkit provides the shared slog setup used across the module.
package logkit

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

var (
	mu     sync.Mutex
	logger *slog.Logger
)

// Default returns the process-wide logger, building it on first use. Output
// goes to stderr; color is enabled only when stderr is a terminal.
func Default() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = New(os.Stderr, slog.LevelInfo)
	}
	return logger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// New builds a tinted handler writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	colored := false
	if f, ok := w.(*os.File); ok {
		colored = term.IsTerminal(int(f.Fd()))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !colored,
	}))
}
