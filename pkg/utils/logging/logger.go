package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
)

// Format selects how log records are encoded
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var (
	ErrInvalidLevel  = goerr.New("invalid log level")
	ErrInvalidFormat = goerr.New("invalid log format")
)

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// On failure it returns info along with ErrInvalidLevel.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, goerr.Wrap(ErrInvalidLevel, "failed to parse log level", goerr.V("level", s))
}

// ParseFormat returns console for an empty string
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatConsole, "":
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return FormatConsole, goerr.Wrap(ErrInvalidFormat, "failed to parse log format", goerr.V("format", s))
}

type options struct {
	level  slog.Level
	format Format
	w      io.Writer
}

type Option func(*options)

func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

func WithFormat(format Format) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithWriter sets the log destination. Nil keeps stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.w = w
		}
	}
}

// New builds a logger. Without options it writes colored info level lines to
// stderr, keeping stdout free for command output.
func New(opts ...Option) *slog.Logger {
	o := options{level: slog.LevelInfo, format: FormatConsole, w: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	if o.format == FormatJSON {
		return slog.New(slog.NewJSONHandler(o.w, &slog.HandlerOptions{Level: o.level}))
	}

	return slog.New(clog.New(
		clog.WithWriter(o.w),
		clog.WithLevel(o.level),
		clog.WithTimeFmt("15:04:05"),
		clog.WithSource(false),
		clog.WithAttrHook(clog.GoerrHook),
	))
}

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(New())
}

func Default() *slog.Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the logger returned by From for contexts without one.
// Nil is ignored.
func SetDefault(logger *slog.Logger) {
	if logger != nil {
		defaultLogger.Store(logger)
	}
}

type ctxLoggerKey struct{}

// With returns a copy of ctx carrying logger
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}

// From returns the logger carried by ctx, or the default logger
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// WithAttrs returns a copy of ctx whose logger adds args to every record,
// e.g. WithAttrs(ctx, "session_id", id).
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return With(ctx, From(ctx).With(args...))
}
