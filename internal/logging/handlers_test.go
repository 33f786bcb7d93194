package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingOutput struct{ slog.Handler }

func (failingOutput) Enabled(context.Context, slog.Level) bool { return true }

func (failingOutput) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func textOutput(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestFanout(t *testing.T) {
	var info, debug bytes.Buffer
	f := NewFanout(nil, textOutput(&info, slog.LevelInfo), nil, textOutput(&debug, slog.LevelDebug))
	require.Len(t, f.outputs, 2)

	log := slog.New(f)
	log.Debug("tick", "n", 1)
	log.Info("crash", "car", 0)

	assert.NotContains(t, info.String(), "tick")
	assert.Contains(t, info.String(), "crash")
	assert.Contains(t, debug.String(), "tick")
	assert.Contains(t, debug.String(), "crash")
}

func TestFanout_Enabled(t *testing.T) {
	ctx := context.Background()
	assert.False(t, NewFanout().Enabled(ctx, slog.LevelError))

	f := NewFanout(textOutput(&bytes.Buffer{}, slog.LevelWarn))
	assert.False(t, f.Enabled(ctx, slog.LevelInfo))
	assert.True(t, f.Enabled(ctx, slog.LevelWarn))
}

func TestFanout_ErrorsDoNotStopOtherOutputs(t *testing.T) {
	var buf bytes.Buffer
	f := NewFanout(failingOutput{}, textOutput(&buf, slog.LevelInfo))

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "still delivered", 0)
	err := f.Handle(context.Background(), r)

	assert.EqualError(t, err, "disk full")
	assert.Contains(t, buf.String(), "still delivered")
}

func TestFanout_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	f := NewFanout(textOutput(&buf, slog.LevelInfo))
	assert.Same(t, f, f.WithGroup(""))

	slog.New(f.WithAttrs([]slog.Attr{slog.String("component", "sim")}).WithGroup("car")).
		Info("spawned", "index", 3)
	assert.Contains(t, buf.String(), "component=sim")
	assert.Contains(t, buf.String(), "car.index=3")
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	scene := "oval"
	h := NewContextHandler(textOutput(&buf, slog.LevelInfo), func() []slog.Attr {
		return []slog.Attr{slog.String("session", "s1"), slog.String("scene", scene)}
	})
	log := slog.New(h)

	log.Info("first")
	scene = "figure8"
	log.Info("second", "session", "override")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "session=s1 scene=oval")
	assert.Contains(t, lines[1], "scene=figure8")
	assert.Contains(t, lines[1], "session=override")
	assert.NotContains(t, lines[1], "session=s1")
}

func TestContextHandler_EmptyProvider(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewContextHandler(textOutput(&buf, slog.LevelInfo), func() []slog.Attr { return nil })).
		Info("before session", "k", "v")
	assert.Contains(t, buf.String(), "k=v")

	buf.Reset()
	slog.New(NewContextHandler(textOutput(&buf, slog.LevelInfo), nil)).Info("no provider")
	assert.Contains(t, buf.String(), "no provider")
}
