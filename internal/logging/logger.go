// Package logging provides structured logging for the client.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flashlab/termscp/internal/events"
)

// Logger wraps zerolog and optionally tees log lines onto the event bus
// so the activity log surface sees the same lines the console does.
type Logger struct {
	zlog     zerolog.Logger
	eventBus *events.EventBus
	output   io.Writer // current output writer
}

// busHook republishes every logged line as a LogEvent.
type busHook struct {
	bus *events.EventBus
}

func (h busHook) Run(e *zerolog.Event, level zerolog.Level, message string) {
	if h.bus == nil || message == "" {
		return
	}
	h.bus.PublishLog(mapLevel(level), message, nil)
}

func mapLevel(level zerolog.Level) events.LogLevel {
	switch {
	case level >= zerolog.ErrorLevel:
		return events.ErrorLevel
	case level == zerolog.WarnLevel:
		return events.WarnLevel
	case level == zerolog.InfoLevel:
		return events.InfoLevel
	default:
		return events.DebugLevel
	}
}

// NewLogger creates a new logger. If eventBus is non-nil every line is
// also published as a LogEvent.
func NewLogger(eventBus *events.EventBus) *Logger {
	// Logs go to stdout; stderr is reserved for progress bars
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	if eventBus != nil {
		logger = logger.Hook(busHook{bus: eventBus})
	}

	return &Logger{
		zlog:     logger,
		eventBus: eventBus,
		output:   output,
	}
}

// NewDefaultLogger creates a logger with no event bus attached.
func NewDefaultLogger() *Logger {
	return NewLogger(nil)
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// Fatal returns a fatal level event.
func (l *Logger) Fatal() *zerolog.Event {
	return l.zlog.Fatal()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput changes the output writer for the logger.
// This is useful for redirecting logs through progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.zlog = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}).With().Timestamp().Logger()
	if l.eventBus != nil {
		l.zlog = l.zlog.Hook(busHook{bus: l.eventBus})
	}
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when debug/verbose mode is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Configure global logger; stderr is reserved for progress bars
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	})
}
