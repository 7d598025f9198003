package tracker

import "log"

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelWarn
	LogLevelError
	LogLevelNone
)

// Logger receives the agent's diagnostics.
type Logger interface {
	Debug(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// PrintLogger writes through the standard logger, filtered by level.
type PrintLogger struct {
	level LogLevel
}

func NewPrintLogger(level LogLevel) *PrintLogger {
	return &PrintLogger{level: level}
}

func (p *PrintLogger) Debug(format string, args ...any) { p.print(LogLevelDebug, "DEBUG", format, args) }
func (p *PrintLogger) Warn(format string, args ...any)  { p.print(LogLevelWarn, "WARN", format, args) }
func (p *PrintLogger) Error(format string, args ...any) { p.print(LogLevelError, "ERROR", format, args) }

func (p *PrintLogger) print(level LogLevel, prefix, format string, args []any) {
	if level < p.level {
		return
	}
	log.Printf("[tracker] "+prefix+": "+format, args...)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}
