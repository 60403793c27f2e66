package logging

import (
	"testing"

	"nurseos/internal/config"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, want := range cases {
		log := New(config.LoggingConfig{Level: input})
		if !log.Core().Enabled(want) {
			t.Fatalf("level %q: expected %s enabled", input, want)
		}
		if want > zapcore.DebugLevel && log.Core().Enabled(want-1) {
			t.Fatalf("level %q: expected %s disabled", input, want-1)
		}
	}
}
