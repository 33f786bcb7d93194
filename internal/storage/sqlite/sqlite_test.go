package sqlitestorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/racedqn/autopilot/internal/database"
	"github.com/racedqn/autopilot/internal/model"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func rec(seq uint64) core.ReplayRecord {
	return core.ReplayRecord{
		Seq:       seq,
		State:     make([]float32, core.StateSize),
		NextState: make([]float32, core.StateSize),
	}
}

func TestCloseWritesFinalDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.db")
	b, err := New(Config{DumpPath: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartSession(&core.Session{ID: "s1", SceneName: "oval"}))
	require.NoError(t, b.StoreTransitions([]core.ReplayRecord{rec(0), rec(1)}))
	assert.Empty(t, b.ExportedFilePath())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, path, b.ExportedFilePath())

	disk, err := database.GetSqliteDB(path)
	require.NoError(t, err)
	var n int64
	require.NoError(t, disk.Model(&model.ReplayTransition{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestPeriodicDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodic.db")
	b, err := New(Config{DumpPath: path, DumpInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "s1"}))

	require.Eventually(t, func() bool {
		paths, err := database.GetBackupDBPaths(filepath.Dir(path))
		return err == nil && len(paths) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseWithoutDumpPath(t *testing.T) {
	b, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	assert.NoError(t, b.Close())
}
