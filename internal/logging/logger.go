// Package logging provides the printf-style logging contract shared by every
// kernel subsystem. It mirrors the host process's own logging facade rather
// than adopting a structured-logging framework, so call sites stay simple.
package logging

import (
	"log"
	"os"
	"reflect"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger { return nopLogger{} }

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

type stdLogger struct {
	component string
	std       *log.Logger
}

// NewComponentLogger returns a logger writing to stderr, tagged with
// component and a severity level on every line.
func NewComponentLogger(component string) Logger {
	return &stdLogger{
		component: component,
		std:       log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *stdLogger) write(level, format string, args ...any) {
	l.std.Printf("["+level+"] ["+l.component+"] "+format, args...)
}

func (l *stdLogger) Debug(format string, args ...any) { l.write("DEBUG", format, args...) }
func (l *stdLogger) Info(format string, args ...any)  { l.write("INFO", format, args...) }
func (l *stdLogger) Warn(format string, args ...any)  { l.write("WARN", format, args...) }
func (l *stdLogger) Error(format string, args ...any) { l.write("ERROR", format, args...) }

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
// No-op loggers from Nop are dropped, since they contribute no output.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if _, ok := logger.(nopLogger); ok {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	switch len(flattened) {
	case 0:
		return Nop()
	case 1:
		return flattened[0]
	default:
		return &multiLogger{loggers: flattened}
	}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}
