package qsapi

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerAdapter(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("debug line", "k", "v")
	logger.Info("info line")
	logger.Warn("warn line", "attempt", 2)
	logger.Error("error line")

	entries := observed.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Message != "debug line" || entries[0].Level != zapcore.DebugLevel {
		t.Errorf("unexpected first entry %+v", entries[0].Entry)
	}
	if entries[2].Level != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", entries[2].Level)
	}

	fields := entries[0].ContextMap()
	if fields["k"] != "v" {
		t.Errorf("expected key-value pair in context, got %v", fields)
	}
	if attempt, ok := entries[2].ContextMap()["attempt"]; !ok || attempt != int64(2) {
		t.Errorf("expected attempt field, got %v", entries[2].ContextMap())
	}
}
