// Copyright 2025 The Secure Systems Lab Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultLogger writes leveled, prefixed lines to a single writer.
// It is safe for concurrent use.
type DefaultLogger struct {
	mu    sync.Mutex
	out   io.Writer
	level LogLevel
}

// NewLogger creates a DefaultLogger writing to stderr at the given level.
func NewLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{out: os.Stderr, level: level}
}

// NewLoggerTo creates a DefaultLogger writing to the given writer.
func NewLoggerTo(out io.Writer, level LogLevel) *DefaultLogger {
	return &DefaultLogger{out: out, level: level}
}

// Debug logs a message at debug level.
func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs a message at info level.
func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a message at warn level.
func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs a message at error level.
func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// GetLevel returns the current minimum log level.
func (l *DefaultLogger) GetLevel() LogLevel {
	return l.level
}

func (l *DefaultLogger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level || l.level == LevelSilent {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] %s\n", level, fmt.Sprintf(format, args...))
}
