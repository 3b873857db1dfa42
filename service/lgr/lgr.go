package lgr

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
	"github.com/natefinch/lumberjack"
	"go.opentelemetry.io/otel/trace"
)

const (
	// LevelImportant sits between INFO and WARN. Used for result data lines
	// that must show up even when INFO is filtered out.
	LevelImportant = slog.Level(2)
	// LevelCritical sits above ERROR. Used when the camera drops.
	LevelCritical = slog.Level(12)
)

// Logger is the process wide logger. It is usable before Init is called.
var Logger = slog.New(NewPrettyHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init rebuilds Logger with the given level. When file is not empty, JSON
// records are also written to a size-rotated file.
func Init(level string, file string) {
	lvl := ParseLevel(level)

	var handler slog.Handler = NewPrettyHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	if file != "" {
		handler = newFanoutHandler(handler, slog.NewJSONHandler(rotatingWriter(file), &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: replaceAttr,
		}))
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "important":
		return LevelImportant
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// Err returns an error attribute carrying a stack trace captured at the
// caller unless the error already has one.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Any("error", nil)
	}
	if len(xerrors.StackTrace(err)) == 0 {
		err = xerrors.WithStackTrace(err, 1)
	}
	return slog.Any("error", err)
}

// WithTrace returns a context carrying a fresh span context. Every record
// logged with that context is tagged with the same trace_id.
func WithTrace(ctx context.Context) context.Context {
	traceID := trace.TraceID(uuid.New())
	spanUUID := uuid.New()
	var spanID trace.SpanID
	copy(spanID[:], spanUUID[:8])

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(ctx, sc)
}

func rotatingWriter(file string) io.Writer {
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7, // days
		Compress:   true,
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= LevelCritical:
		return "CRITICAL"
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= LevelImportant:
		return "IMPORTANT"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
