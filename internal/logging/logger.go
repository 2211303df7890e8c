package logging

// Leveled logging for zvtsim, backed by zerolog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel maps a config/CLI level name to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch s {
	case "silent":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides leveled logging over a zerolog core.
type Logger struct {
	level LogLevel
	file  *os.File
	zl    zerolog.Logger
}

// NewLogger creates a new logger. If logFile is non-empty, output is
// duplicated to that file in addition to the console.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	var out io.Writer = console
	var file *os.File
	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		file = f
		out = zerolog.MultiLevelWriter(console, f)
	}

	zl := zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()

	return &Logger{
		level: level,
		file:  file,
		zl:    zl,
	}, nil
}

// NewTestLogger returns a logger that writes to the given writer, for tests.
func NewTestLogger(level LogLevel, out io.Writer) *Logger {
	return &Logger{
		level: level,
		zl:    zerolog.New(out),
	}
}

// Close closes the logger and its log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.zl.Error().Msgf(format, v...)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.zl.Info().Msgf(format, v...)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.zl.Info().Msgf(format, v...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.zl.Debug().Msgf(format, v...)
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// LogTransaction logs the outcome of one command execution.
func (l *Logger) LogTransaction(operation string, success bool, resultCode byte, amountCents int64, rtt time.Duration) {
	if l.level < LogLevelInfo {
		return
	}
	ev := l.zl.Info()
	if !success {
		ev = l.zl.Error()
	}
	ev.Str("operation", operation).
		Bool("success", success).
		Uint8("result_code", resultCode).
		Int64("amount_cents", amountCents).
		Dur("rtt", rtt).
		Msg("transaction finished")
}

// LogHex logs hex data (for debug level)
func (l *Logger) LogHex(label string, data []byte) {
	if l.level >= LogLevelDebug {
		l.zl.Debug().Str("bytes", fmt.Sprintf("% X", data)).Msg(label)
	}
}
