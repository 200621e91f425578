package logger

import (
	"errors"
	"testing"

	"ethics-review/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestToZapFields_SortedWithNamedErrors(t *testing.T) {
	fields := toZapFields(map[string]interface{}{
		"taskType": "submit-application",
		"cause":    errors.New("boom"),
		"attempt":  2,
	})

	require.Len(t, fields, 3)
	assert.Equal(t, "attempt", fields[0].Key)
	assert.Equal(t, "cause", fields[1].Key)
	assert.Equal(t, zapcore.ErrorType, fields[1].Type)
	assert.Equal(t, "taskType", fields[2].Key)
	assert.Nil(t, toZapFields(nil))
}

func TestZapWrapper_WithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"component": "wizard"})

	log.Info("step saved", map[string]interface{}{"step": 3})
	log.WithError(errors.New("timeout")).Warn("retrying", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "step saved", entries[0].Message)
	assert.Equal(t, "wizard", entries[0].ContextMap()["component"])
	assert.EqualValues(t, 3, entries[0].ContextMap()["step"])
	assert.Equal(t, "timeout", entries[1].ContextMap()["error"])
}

func TestFromConfig_Level(t *testing.T) {
	l := FromConfig(config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"})
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	fallback := FromConfig(config.LoggingConfig{Level: "verbose"})
	assert.True(t, fallback.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, fallback.Core().Enabled(zapcore.DebugLevel))
}
