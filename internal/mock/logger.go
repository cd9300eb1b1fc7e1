// Package mock provides in-memory test doubles for the exchange boundary
// and supporting interfaces.
package mock

import "order_lifecycle/internal/core"

// Logger is a no-op logger for tests
type Logger struct{}

// NewLogger creates a no-op logger
func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) Debug(msg string, fields ...interface{}) {}
func (l *Logger) Info(msg string, fields ...interface{})  {}
func (l *Logger) Warn(msg string, fields ...interface{})  {}
func (l *Logger) Error(msg string, fields ...interface{}) {}
func (l *Logger) Fatal(msg string, fields ...interface{}) {}

func (l *Logger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *Logger) WithFields(fields map[string]interface{}) core.ILogger { return l }
