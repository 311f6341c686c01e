package observability

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelForVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		expect    zapcore.Level
	}{
		{-2, zap.ErrorLevel},
		{-1, zap.ErrorLevel},
		{0, zap.WarnLevel},
		{1, zap.InfoLevel},
		{2, zap.DebugLevel},
		{5, zap.DebugLevel},
	}
	for _, tt := range tests {
		level := levelForVerbosity(tt.verbosity)
		if got := level.Level(); got != tt.expect {
			t.Errorf("levelForVerbosity(%d) = %v, want %v", tt.verbosity, got, tt.expect)
		}
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(1)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}

	logger.Info("test message")
	_ = logger.Sync()
}
