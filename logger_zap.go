package qsapi

import "go.uber.org/zap"

// zapLogger adapts a *zap.Logger to the client's Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger for use with WithLogger. The adapter uses
// the sugared API so the client's alternating key-value pairs map directly
// onto zap fields.
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *zapLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}
