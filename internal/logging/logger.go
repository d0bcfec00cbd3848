// Package logging provides the minimal printf-style logging contract shared by
// every runtime component, plus a file-backed default implementation.
//
// Components depend on the Logger interface only; a nil logger is always legal
// and resolved through OrNop.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"
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
func Nop() Logger {
	return nopLogger{}
}

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

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string onto a LogLevel. Unknown values fall back
// to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

var (
	fileLoggerInstance *fileLogger
	fileLoggerOnce     sync.Once
)

// fileLogger writes formatted lines to otto-debug.log in the user home
// directory. All component loggers share one file handle.
type fileLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	file   *os.File
	level  LogLevel
}

func sharedFileLogger() *fileLogger {
	fileLoggerOnce.Do(func() {
		fileLoggerInstance = &fileLogger{level: DEBUG}

		home, err := os.UserHomeDir()
		if err != nil {
			log.Printf("logging: failed to resolve home directory: %v", err)
			return
		}
		logPath := filepath.Join(home, "otto-debug.log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("logging: failed to open log file: %v", err)
			return
		}
		fileLoggerInstance.file = file
		fileLoggerInstance.logger = log.New(file, "", 0)
	})
	return fileLoggerInstance
}

func (l *fileLogger) write(level LogLevel, component, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level || l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s [%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"), level, component, msg)
}

// SetLevel adjusts the minimum level written by all component loggers.
func SetLevel(level LogLevel) {
	l := sharedFileLogger()
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// componentLogger tags every line with the component that produced it.
type componentLogger struct {
	backend   *fileLogger
	component string
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{backend: sharedFileLogger(), component: component}
}

func (c *componentLogger) Debug(format string, args ...any) {
	c.backend.write(DEBUG, c.component, format, args...)
}

func (c *componentLogger) Info(format string, args ...any) {
	c.backend.write(INFO, c.component, format, args...)
}

func (c *componentLogger) Warn(format string, args ...any) {
	c.backend.write(WARN, c.component, format, args...)
}

func (c *componentLogger) Error(format string, args ...any) {
	c.backend.write(ERROR, c.component, format, args...)
}
