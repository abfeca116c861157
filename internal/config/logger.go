package config

import (
	"io"
	"log/slog"
)

// NewLogger returns a slog logger writing to w in the configured format and
// level. An unknown level falls back to info.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
