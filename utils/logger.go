package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level is a minimum log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn" or "error" to a Level. Unknown
// names yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// Logger provides leveled, component-prefixed logging throughout the application.
type Logger struct {
	out       *log.Logger
	err       *log.Logger
	level     Level
	component string
}

// NewLogger creates a Logger writing info/debug/warn to stdout and errors to stderr.
func NewLogger(level Level) *Logger {
	return &Logger{
		out:   log.New(os.Stdout, "", 0),
		err:   log.New(os.Stderr, "", 0),
		level: level,
	}
}

// NewWriterLogger sends every level to w.
func NewWriterLogger(w io.Writer, level Level) *Logger {
	l := log.New(w, "", 0)
	return &Logger{out: l, err: l, level: level}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return NewWriterLogger(io.Discard, LevelError+1)
}

// With returns a child logger whose lines are prefixed with [component].
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.component = component
	return &child
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) emit(lvl Level, tag, format string, args ...any) {
	if l == nil || lvl < l.level {
		return
	}
	dst := l.out
	if lvl >= LevelError {
		dst = l.err
	}
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		msg = "[" + l.component + "] " + msg
	}
	dst.Printf("[%s] %s %s\n", l.timestamp(), tag, msg)
}

func (l *Logger) Info(format string, args ...any) {
	l.emit(LevelInfo, "\033[32mINFO\033[0m ", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.emit(LevelWarn, "\033[33mWARN\033[0m ", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.emit(LevelError, "\033[31mERROR\033[0m", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.emit(LevelDebug, "\033[36mDEBUG\033[0m", format, args...)
}
