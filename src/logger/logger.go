package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// -----------------------------------------------------------------------------

// Log levels, lowest first.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarning
	LevelError
)

// levelSource is satisfied by the application config.
type levelSource interface {
	LogLevelName() string
}

// Logger provides structured logging functionality
type Logger struct {
	name   string
	logger *log.Logger
	config interface{}
	level  int
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance
func NewLogger(config interface{}, name string) *Logger {
	l := &Logger{
		name:   name,
		logger: log.New(os.Stdout, "", log.LstdFlags),
		config: config,
		level:  LevelInfo,
	}
	if src, ok := config.(levelSource); ok {
		l.level = ParseLevel(src.LogLevelName())
	}
	return l
}

// -----------------------------------------------------------------------------

// ParseLevel maps a config string to a level. Unknown values mean INFO.
func ParseLevel(s string) int {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetOutput redirects the logger.
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

// SetLevel changes the minimum level written.
func (l *Logger) SetLevel(level int) {
	l.level = level
}

// Named returns a logger sharing this one's output and level under a new name.
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		name:   name,
		logger: log.New(l.logger.Writer(), "", l.logger.Flags()),
		config: l.config,
		level:  l.level,
	}
}

// -----------------------------------------------------------------------------

func (l *Logger) write(level int, tag, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] %s: %s", l.name, tag, msg)
}

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.write(LevelWarning, "WARNING", format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] CRITICAL: %s", l.name, msg)
	os.Exit(1)
}
