// Package `logger` implements a small leveled logger that writes to several outputs.
package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal

	// Nothing is logged at this level. Useful for tests.
	LevelSilent
)

var levelString = map[LogLevel]string{
	LevelTrace:   "  TRACE     ",
	LevelDebug:   "  DEBUG     ",
	LevelInfo:    "  INFO      ",
	LevelWarning: "  WARNING   ",
	LevelError:   "  ERROR  !  ",
	LevelFatal:   "  FATAL !!! ",
}

var nameToLevel = map[string]LogLevel{
	"trace":   LevelTrace,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarning,
	"warning": LevelWarning,
	"error":   LevelError,
	"fatal":   LevelFatal,
	"silent":  LevelSilent,
}

// ParseLevel turns a config string such as "debug" into a [LogLevel].
// An empty string means [LevelInfo].
func ParseLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelInfo, nil
	}
	lvl, ok := nameToLevel[s]
	if !ok {
		return LevelInfo, fmt.Errorf("logger: Unknown log level '%v'.", s)
	}
	return lvl, nil
}

// A FormatFunc formats messages into log lines (i.e. by including log levels, timestamps, etc.).
type FormatFunc func(msg string, lvl LogLevel) string

// DefaultFmt formats messages into the form:
// `LEVEL    Mon Jan 2 15:04:05 -0700 2006: message`
// with exactly one newline at the end.
func DefaultFmt(msg string, lvl LogLevel) string {
	logTime := time.Now().Format(time.RubyDate)
	msg = strings.TrimRight(msg, "\n")
	return fmt.Sprintf("%v%v: %v\n", levelString[lvl], logTime, msg)
}

// output is a writer shared between a logger and its children.
type output struct {
	w  io.Writer
	mu sync.Mutex
}

// A Logger logs formatted messages into [io.Writer]s according to their log level.
// Loggers are safe for concurrent use.
type Logger struct {
	level   LogLevel
	fmt     FormatFunc
	prefix  string
	outputs []*output
}

var (
	// DefaultLogger logs to stdout at LevelInfo, with [DefaultFmt].
	DefaultLogger *Logger = NewLogger(nil, LevelInfo, os.Stdout)
	currentLogger *Logger = DefaultLogger
)

// SetLogger sets the logger that will be used on non-method calls.
// Preferably, this is to be set only once, at the top-level.
func SetLogger(logger *Logger) {
	currentLogger = logger
}

// NewLogger creates a logger that logs at the passed level and to
// the passed writers. If `nil` is passed for `fmt`, [DefaultFmt] is used.
func NewLogger(fmt FormatFunc, lvl LogLevel, writers ...io.Writer) *Logger {
	if fmt == nil {
		fmt = DefaultFmt
	}
	outs := make([]*output, len(writers))
	for i, w := range writers {
		outs[i] = &output{w: w}
	}
	return &Logger{
		level:   lvl,
		fmt:     fmt,
		outputs: outs,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLogger(nil, LevelSilent)
}

// NewLoggerOutputs creates a logger that logs at the passed level
// and outputs to the passed outputs, if they are valid. Valid outputs
// are paths (if relative, they will be relative to the executable) and
// "stdout" for stdout. Always returns a logger, but it may not log to
// any outputs if all outputs are invalid.
func NewLoggerOutputs(level LogLevel, fmt FormatFunc, outputs ...string) *Logger {
	outs := []io.Writer{}
	execPath, execErr := os.Executable()
	if execErr != nil {
		Errorf("logger: Couldn't get executable path (%v), unable to log to relative paths.", execErr)
	}
	execDir := path.Dir(execPath)
	for _, out := range outputs {
		if out == "stdout" {
			outs = append(outs, os.Stdout)
			continue
		}
		if out == "stderr" {
			outs = append(outs, os.Stderr)
			continue
		}

		logPath := out
		if !path.IsAbs(out) {
			if execErr != nil {
				Errorf("logger: Cannot locate %v, don't know executable path. Will not log to this file.", out)
				continue
			}
			logPath = path.Join(execDir, out)
		}

		// If this fails, opening the file will fail too.
		os.MkdirAll(path.Dir(logPath), os.ModePerm)

		logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0660)
		if err != nil {
			Errorf("logger: Couldn't open/create log file at %v (%v). Will not log to this file.", out, err)
			continue
		}
		outs = append(outs, logFile)
	}
	return NewLogger(fmt, level, outs...)
}

// With returns a child logger that shares outputs and level with `logger`,
// and prepends `prefix` to every message.
func (logger *Logger) With(prefix string) *Logger {
	return &Logger{
		level:   logger.level,
		fmt:     logger.fmt,
		prefix:  logger.prefix + prefix + " ",
		outputs: logger.outputs,
	}
}

// Level returns the minimum level this logger writes.
func (logger *Logger) Level() LogLevel {
	return logger.level
}

// Log formats a message and writes to the Logger's outputs if the level is appropriate.
func (logger *Logger) Log(level LogLevel, msg string) {
	if level < logger.level || level >= LevelSilent {
		return
	}
	s := logger.fmt(logger.prefix+msg, level)
	for _, out := range logger.outputs {
		out.mu.Lock()
		fmt.Fprint(out.w, s)
		out.mu.Unlock()
	}
}

func (logger *Logger) Trace(mesg string) { logger.Log(LevelTrace, mesg) }
func (logger *Logger) Debug(mesg string) { logger.Log(LevelDebug, mesg) }
func (logger *Logger) Info(mesg string)  { logger.Log(LevelInfo, mesg) }
func (logger *Logger) Warn(mesg string)  { logger.Log(LevelWarning, mesg) }
func (logger *Logger) Error(mesg string) { logger.Log(LevelError, mesg) }
func (logger *Logger) Fatal(mesg string) { logger.Log(LevelFatal, mesg) }

func (logger *Logger) logf(lvl LogLevel, format string, a ...any) {
	// Skip the Sprintf if nobody will see it.
	if lvl < logger.level {
		return
	}
	logger.Log(lvl, fmt.Sprintf(format, a...))
}

func (logger *Logger) Tracef(format string, a ...any) { logger.logf(LevelTrace, format, a...) }
func (logger *Logger) Debugf(format string, a ...any) { logger.logf(LevelDebug, format, a...) }
func (logger *Logger) Infof(format string, a ...any)  { logger.logf(LevelInfo, format, a...) }
func (logger *Logger) Warnf(format string, a ...any)  { logger.logf(LevelWarning, format, a...) }
func (logger *Logger) Errorf(format string, a ...any) { logger.logf(LevelError, format, a...) }
func (logger *Logger) Fatalf(format string, a ...any) { logger.logf(LevelFatal, format, a...) }

// The functions below log to the logger set with [SetLogger].

func Trace(mesg string) { currentLogger.Trace(mesg) }
func Debug(mesg string) { currentLogger.Debug(mesg) }
func Info(mesg string)  { currentLogger.Info(mesg) }
func Warn(mesg string)  { currentLogger.Warn(mesg) }
func Error(mesg string) { currentLogger.Error(mesg) }
func Fatal(mesg string) { currentLogger.Fatal(mesg) }

func Tracef(format string, a ...any) { currentLogger.Tracef(format, a...) }
func Debugf(format string, a ...any) { currentLogger.Debugf(format, a...) }
func Infof(format string, a ...any)  { currentLogger.Infof(format, a...) }
func Warnf(format string, a ...any)  { currentLogger.Warnf(format, a...) }
func Errorf(format string, a ...any) { currentLogger.Errorf(format, a...) }
func Fatalf(format string, a ...any) { currentLogger.Fatalf(format, a...) }
