package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/racedqn/autopilot/internal/influx"
	"github.com/racedqn/autopilot/internal/session"
	"github.com/racedqn/autopilot/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct{ d core.Dashboard }

func (f fixedSource) Snapshot() core.Dashboard { return f.d }

type recordingWriter struct {
	mu      sync.Mutex
	buckets []string
	points  []*influxdb2_write.Point
	err     error
}

func (w *recordingWriter) WritePoint(_ context.Context, bucket string, p *influxdb2_write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buckets = append(w.buckets, bucket)
	w.points = append(w.points, p)
	return w.err
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points)
}

var dash = core.Dashboard{
	Epsilon:      0.5,
	BufferLen:    640,
	Inserts:      1000,
	Crashes:      3,
	Step:         1200,
	SyncInterval: 500,
	LastReward:   0.25,
	LastLoss:     0.125,
	Training:     true,
}

func TestStatusLines(t *testing.T) {
	lines := StatusLines(dash)
	require.Len(t, lines, 7)
	assert.Equal(t, "epsilon:     0.5000", lines[0])
	assert.Equal(t, "buffer:      640 (inserts 1000)", lines[1])
	assert.Equal(t, "crashes:     3", lines[2])
	assert.Equal(t, "sync:        200/500 (step 1200)", lines[3])
	assert.Equal(t, "training:    running", lines[6])

	assert.Contains(t, StatusLines(core.Dashboard{})[3], "0/0")
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	status := filepath.Join(dir, "status.txt")
	sess := session.NewContext()
	s0 := sess.Start("oval", 100, time.Now())
	w := &recordingWriter{}

	svc := NewService(Dependencies{
		Source:     fixedSource{dash},
		Session:    sess,
		Influx:     w,
		StatusFile: status,
	})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := svc.Report(context.Background(), at)
	assert.Equal(t, dash, got)

	body, err := os.ReadFile(status)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(StatusLines(dash), "\n")+"\n", string(body))

	require.Equal(t, 1, w.count())
	assert.Equal(t, influx.TrainingBucket, w.buckets[0])
	line := influxdb2_write.PointToLineProtocol(w.points[0], time.Nanosecond)
	assert.Contains(t, line, "session="+s0.ID)
}

func TestReportWriterErrorIsLogged(t *testing.T) {
	w := &recordingWriter{err: errors.New("down")}
	svc := NewService(Dependencies{Source: fixedSource{dash}, Influx: w})
	svc.Report(context.Background(), time.Now())
	assert.Equal(t, 1, w.count())
}

func TestStartStop(t *testing.T) {
	w := &recordingWriter{}
	svc := NewService(Dependencies{
		Source:   fixedSource{dash},
		Influx:   w,
		Interval: 5 * time.Millisecond,
	})

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())

	require.Eventually(t, func() bool { return w.count() >= 2 }, time.Second, 5*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())
}

func TestStartWithoutSource(t *testing.T) {
	assert.Error(t, NewService(Dependencies{}).Start())
}
