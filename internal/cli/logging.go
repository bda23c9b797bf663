package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"
)

// debugLog is the open --debug destination, closed once the command ends.
var debugLog *os.File

// initLogging wires slog to a human-readable handler on stderr. --quiet
// raises the console level to warnings, --no-color strips the colors, and
// --debug mirrors everything at debug level into a file, or lowers the
// console level when its argument is '-'.
func initLogging() error {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	if debugDest == "-" {
		level = slog.LevelDebug
	}

	console := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level:        level,
		DisableColor: noColor,
	})

	handler := slog.Handler(console)
	if debugDest != "" && debugDest != "-" {
		f, err := os.OpenFile(debugDest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open debug log %s: %w", debugDest, err)
		}
		debugLog = f
		trace := humanlog.NewHandler(f, &humanlog.Options{
			Level:        slog.LevelDebug,
			DisableColor: true,
		})
		handler = teeHandler{console, trace}
	}

	slog.SetDefault(slog.New(handler))

	if file := viper.ConfigFileUsed(); file != "" {
		slog.Debug("using config file", "path", file)
	}
	return nil
}

func closeLogging() {
	if debugLog != nil {
		_ = debugLog.Close()
		debugLog = nil
	}
}

// teeHandler fans records out to every destination whose level admits them.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
