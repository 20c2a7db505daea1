// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel accepts the names printed by Level.String, case insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	prefix string
}

var (
	mu       sync.RWMutex
	output   io.Writer = os.Stdout
	logFile  *os.File
	level    = LevelInfo
	initOnce sync.Once
)

// Init sends all loggers to stdout and the file at logPath.
// Debug is enabled at startup if the DEBUG env var is set.
func Init(logPath string) error {
	var err error
	initOnce.Do(func() {
		if dir := filepath.Dir(logPath); dir != "" {
			_ = os.MkdirAll(dir, 0755)
		}
		var f *os.File
		f, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}

		mu.Lock()
		logFile = f
		output = io.MultiWriter(os.Stdout, f)
		if os.Getenv("DEBUG") != "" {
			level = LevelDebug
		}
		mu.Unlock()
	})
	return err
}

// Close cleans up the log file (call on shutdown)
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		output = os.Stdout
	}
}

// SetOutput redirects every logger. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	output = w
	mu.Unlock()
}

func SetLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
}

func CurrentLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	if on {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
}

func IsDebug() bool {
	return CurrentLevel() <= LevelDebug
}

func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) print(lvl Level, withCaller bool, fmtstr string, v ...any) string {
	formatted := fmt.Sprintf(fmtstr, v...)

	mu.RLock()
	w := output
	enabled := lvl >= level
	mu.RUnlock()
	if !enabled {
		return formatted
	}

	line := fmt.Sprintf("[%s] %s: %s", l.prefix, lvl, formatted)
	if withCaller {
		if _, file, no, ok := runtime.Caller(2); ok {
			line = fmt.Sprintf("[%s] %s: (%s:%d) %s", l.prefix, lvl, filepath.Base(file), no, formatted)
		}
	}
	log.New(w, "", log.LstdFlags).Print(line)
	return formatted
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	l.print(LevelDebug, false, fmtstr, v...)
}

func (l *Logger) Info(fmtstr string, v ...any) {
	l.print(LevelInfo, false, fmtstr, v...)
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	l.print(LevelWarn, false, fmtstr, v...)
}

func (l *Logger) Error(fmtstr string, v ...any) {
	l.print(LevelError, true, fmtstr, v...)
}

// Fatal logs regardless of level and panics; service.Start turns the
// panic into a non-zero exit.
func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	mu.RLock()
	w := output
	mu.RUnlock()
	if _, file, no, ok := runtime.Caller(1); ok {
		log.New(w, "", log.LstdFlags).Printf("[%s] FATAL: (%s:%d) %s", l.prefix, filepath.Base(file), no, formatted)
	} else {
		log.New(w, "", log.LstdFlags).Printf("[%s] FATAL: %s", l.prefix, formatted)
	}
	panic(formatted)
}
