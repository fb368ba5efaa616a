// Package logging holds the slog conventions shared by every command:
// component-scoped loggers, operation/error helpers and handler setup.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the handler format, level and an optional rotating log file.
type Config struct {
	Level      string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `json:"format" yaml:"format" validate:"omitempty,oneof=text json"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" validate:"gte=0"`
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w, or to a lumberjack-rotated file
// when cfg.File is set. The returned closer releases the file.
func NewLogger(cfg Config, w io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w = io.MultiWriter(w, rotating)
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer
}

// Setup builds a logger writing to w and installs it as the slog default.
func Setup(cfg Config, w io.Writer) (*slog.Logger, io.Closer) {
	logger, closer := NewLogger(cfg, w)
	slog.SetDefault(logger)
	return logger, closer
}

// LogOperation records a successful step. op is a snake_case event name.
func LogOperation(logger *slog.Logger, op string, attrs ...slog.Attr) {
	logger.LogAttrs(context.Background(), slog.LevelInfo, op, attrs...)
}

// LogWarning records a non-fatal anomaly.
func LogWarning(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}

// LogError records a failure with its error attached.
func LogError(logger *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	all := make([]slog.Attr, 0, len(attrs)+1)
	all = append(all, slog.String("error", fmt.Sprint(err)))
	all = append(all, attrs...)
	logger.LogAttrs(context.Background(), slog.LevelError, msg, all...)
}

// SafeCloseWithLogging closes c and logs instead of dropping a close error.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", resource))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
