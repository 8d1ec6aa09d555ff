package log

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// We only need the first line of the stack ("goroutine 123 [running]:").
	minStackBufSize = 32
	// Minimum expected stack trace length for valid goroutine info.
	minStackTraceLen = 12
	// Length of the "goroutine " prefix.
	goroutinePrefixLen = 10

	// FormatConsole writes human readable, colored lines.
	FormatConsole = "console"
	// FormatJSON writes one JSON object per line.
	FormatJSON = "json"
)

var (
	Logger        zerolog.Logger
	goroutinePool sync.Pool
)

func init() {
	goroutinePool.New = func() interface{} {
		return make([]byte, minStackBufSize)
	}

	Logger = build(os.Stderr, FormatConsole, zerolog.InfoLevel)
	log.Logger = Logger
}

// goroutineID extracts the current goroutine ID from a minimal stack dump.
func goroutineID() string {
	bufInterface := goroutinePool.Get()
	buf, ok := bufInterface.([]byte)
	if !ok {
		return "unknown"
	}
	defer goroutinePool.Put(buf) //nolint:staticcheck // buf is a slice, this is the correct usage

	stackLen := runtime.Stack(buf, false)
	if stackLen < minStackTraceLen {
		return "unknown"
	}

	idx := goroutinePrefixLen
	start := idx
	for idx < stackLen && buf[idx] >= '0' && buf[idx] <= '9' {
		idx++
	}

	if idx > start {
		return string(buf[start:idx])
	}
	return "unknown"
}

func build(out io.Writer, format string, level zerolog.Level) zerolog.Logger {
	writer := out
	if format != FormatJSON {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			e.Str("goid", goroutineID())
		}))
}

// Configure replaces the process logger with one writing to out at the given
// level ("debug", "info", "warn", "error") and format ("console" or "json").
func Configure(level, format string, out io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	Logger = build(out, strings.ToLower(format), lvl)
	log.Logger = Logger
	return nil
}

// Output resolves a configured output name to a writer. "stdout" and "stderr"
// map to the process streams, anything else is opened as an append-only file.
// The returned close function is a no-op for the process streams.
func Output(name string) (io.Writer, func() error, error) {
	switch strings.ToLower(name) {
	case "", "stderr":
		return os.Stderr, func() error { return nil }, nil
	case "stdout":
		return os.Stdout, func() error { return nil }, nil
	}

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", name, err)
	}
	return f, f.Close, nil
}

// Info logs an info message with goroutine ID.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Error logs an error message with goroutine ID.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Warn logs a warning message with goroutine ID.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Debug logs a debug message with goroutine ID.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Fatal logs a fatal message with goroutine ID and exits.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
