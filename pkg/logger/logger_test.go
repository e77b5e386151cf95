package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		off     zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"", zapcore.InfoLevel, zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, err := New(tt.level)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.off))
		})
	}
}

func TestNewNone(t *testing.T) {
	l, err := New("none")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.FatalLevel))
}

func TestNewInvalid(t *testing.T) {
	_, err := New("verbose")
	assert.Error(t, err)
}
