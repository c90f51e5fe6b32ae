package qsapi

import (
	"fmt"
	"log"
	"os"
)

// Logger is the minimal structured logging interface the client emits to.
// Key-value pairs follow the message, alternating keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig selects which pipeline events are logged.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCache     bool
	LogCircuit   bool
	LogRateLimit bool
	LogDedup     bool
}

// DefaultDebugConfig enables all event classes once debugging is turned on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogCircuit:   true,
		LogRateLimit: true,
		LogDedup:     true,
	}
}

// SimpleLogger writes leveled key-value lines to stderr via the standard log
// package. Intended for development; production users plug in their own
// Logger (see NewZapLogger).
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger returns a console logger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...any) {
	l.print("DEBUG", msg, keysAndValues)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...any) {
	l.print("INFO", msg, keysAndValues)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...any) {
	l.print("WARN", msg, keysAndValues)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...any) {
	l.print("ERROR", msg, keysAndValues)
}

func (l *SimpleLogger) print(level, msg string, keysAndValues []any) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		line += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Println(line)
}
