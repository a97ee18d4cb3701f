package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("warn", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l.Info("dropped")
	l.WithField("configuration_id", "abc").Warn("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc", entry["configuration_id"])

	_, err = New("loud", nil)
	assert.Error(t, err)
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewZapAdapter(zap.New(core))

	a.Info("started", "workflow_id", "finalize-1", "attempt", 2)
	a.With("namespace", "default").Warn("slow", 42, "odd", "dangling")
	a.Error("failed")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	assert.Equal(t, "started", entries[0].Message)
	assert.Equal(t, map[string]any{"workflow_id": "finalize-1", "attempt": int64(2)}, entries[0].ContextMap())

	ctx := entries[1].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "default", ctx["namespace"])
	assert.Equal(t, "odd", ctx["unknown_key"])
	assert.Equal(t, "dangling", ctx["extra"])
}

func TestNewTemporalLogger(t *testing.T) {
	a, err := NewTemporalLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, a)

	_, err = NewTemporalLogger("chatty")
	assert.Error(t, err)
}
