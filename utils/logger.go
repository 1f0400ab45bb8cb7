package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn" and "error" to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// LogOptions configures where the logger writes besides the console.
type LogOptions struct {
	Level      Level
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Logger provides structured, leveled logging throughout the application.
type Logger struct {
	level Level
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	debug *log.Logger
	file  io.Closer
}

// NewLogger creates a new Logger writing to stdout/stderr at info level.
func NewLogger() *Logger {
	return NewLoggerWithOptions(LogOptions{Level: LevelInfo})
}

// NewLoggerWithOptions creates a Logger that also tees into a size-rotated
// file when opts.File is set.
func NewLoggerWithOptions(opts LogOptions) *Logger {
	var stdout, stderr io.Writer = os.Stdout, os.Stderr
	var closer io.Closer

	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		stdout = io.MultiWriter(os.Stdout, rotating)
		stderr = io.MultiWriter(os.Stderr, rotating)
		closer = rotating
	}

	flags := 0
	return &Logger{
		level: opts.Level,
		info:  log.New(stdout, "", flags),
		warn:  log.New(stdout, "", flags),
		err:   log.New(stderr, "", flags),
		debug: log.New(stdout, "", flags),
		file:  closer,
	}
}

// NewDiscardLogger returns a Logger that drops everything; handy in tests.
func NewDiscardLogger() *Logger {
	l := log.New(io.Discard, "", 0)
	return &Logger{level: LevelError + 1, info: l, warn: l, err: l, debug: l}
}

// Close releases the rotating log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) Info(format string, args ...any) {
	if l.level > LevelInfo {
		return
	}
	l.info.Printf(fmt.Sprintf("[%s] \033[32mINFO\033[0m  %s\n", l.timestamp(), format), args...)
}

func (l *Logger) Warn(format string, args ...any) {
	if l.level > LevelWarn {
		return
	}
	l.warn.Printf(fmt.Sprintf("[%s] \033[33mWARN\033[0m  %s\n", l.timestamp(), format), args...)
}

func (l *Logger) Error(format string, args ...any) {
	if l.level > LevelError {
		return
	}
	l.err.Printf(fmt.Sprintf("[%s] \033[31mERROR\033[0m %s\n", l.timestamp(), format), args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if l.level > LevelDebug {
		return
	}
	l.debug.Printf(fmt.Sprintf("[%s] \033[36mDEBUG\033[0m %s\n", l.timestamp(), format), args...)
}
