package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(seq uint64) core.ReplayRecord {
	return core.ReplayRecord{
		Seq:       seq,
		State:     make([]float32, core.StateSize),
		NextState: make([]float32, core.StateSize),
		Action:    int(seq % 9),
		Reward:    0.5,
	}
}

func session(id string) *core.Session {
	return &core.Session{
		ID:        id,
		SceneName: "oval test",
		StartedAt: time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC),
	}
}

func TestStoreRequiresSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	err := b.StoreTransitions([]core.ReplayRecord{record(0)})
	assert.ErrorIs(t, err, storage.ErrNoSession)
}

func TestStoreAttributesToCurrentSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(session("s1")))

	require.NoError(t, b.StoreTransitions([]core.ReplayRecord{record(0), record(1)}))

	n, err := b.CountTransitions("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	recs := b.Records("s1")
	require.Len(t, recs, 2)
	assert.Equal(t, "s1", recs[0].SessionID)
}

func TestStoreConflictsAreAtomic(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(session("s1")))
	require.NoError(t, b.StoreTransitions([]core.ReplayRecord{record(3)}))

	err := b.StoreTransitions([]core.ReplayRecord{record(4), record(3)})
	assert.ErrorIs(t, err, storage.ErrConflict)

	err = b.StoreTransitions([]core.ReplayRecord{record(5), record(5)})
	assert.ErrorIs(t, err, storage.ErrConflict)

	n, _ := b.CountTransitions("s1")
	assert.Equal(t, int64(1), n)
}

func TestStoreUnknownSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(session("s1")))

	r := record(0)
	r.SessionID = "missing"
	assert.ErrorIs(t, b.StoreTransitions([]core.ReplayRecord{r}), storage.ErrNotFound)

	_, err := b.GetSession("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = b.CountTransitions("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDuplicateSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(session("s1")))
	assert.ErrorIs(t, b.StartSession(session("s1")), storage.ErrConflict)
}

func TestCloseWithoutOutputDirDoesNotExport(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(session("s1")))
	require.NoError(t, b.Close())
	assert.Empty(t, b.ExportedFilePath())
}

func TestExportRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "gzip"}[compress], func(t *testing.T) {
			dir := t.TempDir()
			b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: compress})
			require.NoError(t, b.StartSession(session("0123456789abcdef")))
			require.NoError(t, b.StoreTransitions([]core.ReplayRecord{record(0), record(1), record(2)}))
			require.NoError(t, b.Close())

			path := b.ExportedFilePath()
			want := "oval_test_20240302_103000_01234567.json"
			if compress {
				want += ".gz"
			}
			assert.Equal(t, filepath.Join(dir, want), path)

			export, err := ReadExport(path)
			require.NoError(t, err)
			assert.Equal(t, "0123456789abcdef", export.SessionID)
			assert.Equal(t, core.StateSize, export.StateSize)
			assert.Equal(t, 3, export.Count)
			require.Len(t, export.Transitions, 3)
			assert.Equal(t, uint64(2), export.Transitions[2].Seq)
		})
	}
}
