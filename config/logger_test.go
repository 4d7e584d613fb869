package config

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zap.DebugLevel},
		{"DEBUG", zap.DebugLevel},
		{"info", zap.InfoLevel},
		{"warn", zap.WarnLevel},
		{"warning", zap.WarnLevel},
		{"error", zap.ErrorLevel},
		{"", zap.InfoLevel},
		{"verbose", zap.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitLogger(t *testing.T) {
	logger, err := InitLogger("warn")
	if err != nil {
		t.Fatal(err)
	}
	defer Cleanup()

	if logger.Core().Enabled(zap.InfoLevel) {
		t.Error("info should be suppressed at warn level")
	}
	if !logger.Core().Enabled(zap.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}
