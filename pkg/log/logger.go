package log

import (
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	stackBufSize  = 32
	goroutineSkip = len("goroutine ")
)

var (
	Logger  zerolog.Logger
	bufPool = sync.Pool{New: func() any { return make([]byte, stackBufSize) }}
)

// goroutineID reads the current goroutine number from the first stack line.
func goroutineID() string {
	buf, ok := bufPool.Get().([]byte)
	if !ok {
		return "unknown"
	}
	defer bufPool.Put(buf) //nolint:staticcheck // slice value is fine here

	n := runtime.Stack(buf, false)
	end := goroutineSkip
	for end < n && buf[end] >= '0' && buf[end] <= '9' {
		end++
	}
	if end == goroutineSkip {
		return "unknown"
	}
	return string(buf[goroutineSkip:end])
}

func goroutineHook() zerolog.Hook {
	return zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
		e.Str("goid", goroutineID())
	})
}

func init() {
	Configure(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, zerolog.InfoLevel)
}

// Configure replaces the global logger with one writing to out at the given level.
func Configure(out io.Writer, level zerolog.Level) {
	Logger = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(goroutineHook())

	log.Logger = Logger
}

// UseJSON switches the global logger to newline-delimited JSON on stdout.
func UseJSON() {
	Configure(os.Stdout, Logger.GetLevel())
}

// For returns a child logger tagged with the component name.
func For(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// SetLevel parses a level name ("debug", "info", ...) and applies it. Unknown names keep the current level.
func SetLevel(name string) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || name == "" {
		return
	}
	Logger = Logger.Level(level)
	log.Logger = Logger
}

// SetDebugMode switches the logger to debug level.
func SetDebugMode() {
	Logger = Logger.Level(zerolog.DebugLevel)
	log.Logger = Logger
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Fatal logs and exits the process once the event is sent.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
