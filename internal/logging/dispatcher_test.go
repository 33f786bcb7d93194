package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/racedqn/autopilot/internal/dispatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ dispatcher.Logger = (*DispatcherLogger)(nil)

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *DispatcherLogger)
	}{
		{"DEBUG", func(l *DispatcherLogger) { l.Debug("event queued", "command", ":REPLAY:PERSIST:", "size", 100) }},
		{"INFO", func(l *DispatcherLogger) { l.Info("event queued", "command", ":REPLAY:PERSIST:", "size", 100) }},
		{"ERROR", func(l *DispatcherLogger) { l.Error("event queued", "command", ":REPLAY:PERSIST:", "size", 100) }},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewDispatcherLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
			tt.log(l)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "event queued", entry["msg"])
			assert.Equal(t, "dispatcher", entry["component"])
			assert.Equal(t, ":REPLAY:PERSIST:", entry["command"])
			assert.Equal(t, float64(100), entry["size"])
		})
	}
}

func TestDispatcherLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewDispatcherLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	l.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestDispatcherLogger_NilUsesDefault(t *testing.T) {
	assert.NotPanics(t, func() { NewDispatcherLogger(nil).Info("ok") })
}
