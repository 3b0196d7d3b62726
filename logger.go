package ncpack

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/reduce"
)

// Logger wraps slog.Logger with ncpack-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithShape adds the array shape to the logger.
func (l *Logger) WithShape(shape []int) *Logger {
	return &Logger{
		Logger: l.Logger.With("shape", shape),
	}
}

// WithBlob adds a blob name to the logger.
func (l *Logger) WithBlob(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("blob", name),
	}
}

// WithParams adds quantization parameters to the logger.
func (l *Logger) WithParams(p quantization.Params) *Logger {
	return &Logger{
		Logger: l.Logger.With("bits", int(p.Bits), "scale", p.Scale, "offset", p.Offset),
	}
}

// LogSlab logs one processed slab.
func (l *Logger) LogSlab(ctx context.Context, ev reduce.SlabEvent) {
	if ev.Err != nil {
		l.ErrorContext(ctx, "slab failed",
			"slab", ev.Index,
			"begin", ev.Range.Begin,
			"end", ev.Range.End,
			"error", ev.Err,
		)
		return
	}
	l.DebugContext(ctx, "slab processed",
		"slab", ev.Index,
		"begin", ev.Range.Begin,
		"end", ev.Range.End,
		"bytes", humanize.IBytes(uint64(ev.Bytes)),
		"elapsed", ev.Elapsed,
	)
}

// LogMemoryCheck logs one memory probe.
func (l *Logger) LogMemoryCheck(ctx context.Context, ev reduce.MemoryCheck) {
	args := []any{
		"slab", ev.Slab,
		"phase", ev.Phase,
		"used", humanize.IBytes(ev.Observed),
		"budget", humanize.IBytes(uint64(max(ev.Budget, 0))),
	}
	if ev.Observed > uint64(max(ev.Budget, 0)) {
		l.WarnContext(ctx, "memory above budget", args...)
		return
	}
	l.DebugContext(ctx, "memory check", args...)
}

// LogReduce logs a reduction.
func (l *Logger) LogReduce(ctx context.Context, stats reduce.Stats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reduce failed",
			"slabs", stats.Slabs,
			"rows", stats.Rows,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "reduce completed",
		"slabs", stats.Slabs,
		"slab_size", stats.SlabSize,
		"rows", stats.Rows,
		"read", humanize.IBytes(uint64(stats.BytesRead)),
		"elapsed", stats.Elapsed,
		"throughput", humanize.IBytes(uint64(stats.Throughput()))+"/s",
	)
}

// LogPack logs a pack operation.
func (l *Logger) LogPack(ctx context.Context, report *PackReport, err error) {
	if err != nil {
		l.ErrorContext(ctx, "pack failed",
			"error", err,
		)
		return
	}
	if report.Saturated > 0 {
		l.WarnContext(ctx, "pack clamped values",
			"saturated", report.Saturated,
		)
	}
	l.InfoContext(ctx, "pack completed",
		"values", report.Values,
		"missing", report.Missing,
		"raw", humanize.IBytes(uint64(report.RawBytes)),
		"packed", humanize.IBytes(uint64(report.PackedBytes)),
		"ratio", report.Ratio(),
		"elapsed", report.Elapsed,
	)
}

// LogUnpack logs an unpack operation.
func (l *Logger) LogUnpack(ctx context.Context, values int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "unpack failed",
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "unpack completed",
		"values", values,
	)
}
