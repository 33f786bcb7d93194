package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host:     "db",
		Port:     "5432",
		Username: "racer",
		Password: "pw",
		Database: "racesim",
	})
	assert.Equal(t, "host=db port=5432 user=racer password=pw dbname=racesim sslmode=disable", dsn)
}

func TestInMemoryDatabasesAreIsolated(t *testing.T) {
	a, err := GetSqliteDB("")
	require.NoError(t, err)
	b, err := GetSqliteDB("")
	require.NoError(t, err)

	require.NoError(t, Migrate(a))
	require.NoError(t, a.Create(&model.Session{ID: "only-in-a"}).Error)

	assert.False(t, b.Migrator().HasTable(&model.Session{}))
}

func TestManagerSqliteSetupAndDump(t *testing.T) {
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.ConnectSqlite(""))
	defer m.Close()

	assert.True(t, m.Local())
	require.NoError(t, m.Setup())
	require.NoError(t, m.DB.Create(&model.Session{ID: "s1", SceneName: "oval"}).Error)

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.db")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	require.NoError(t, m.DumpMemoryToDisk(path))

	disk, err := GetSqliteDB(path)
	require.NoError(t, err)
	var got model.Session
	require.NoError(t, disk.First(&got, "id = ?", "s1").Error)
	assert.Equal(t, "oval", got.SceneName)

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestDumpMemoryDBToDiskErrors(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)

	assert.Error(t, DumpMemoryDBToDisk(db, ""))
	assert.Error(t, DumpMemoryDBToDisk(nil, "x.db"))
}

func TestSetupWithoutConnection(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.Error(t, m.Setup())
	assert.NoError(t, m.Close())
}

func TestGetBackupDBPathsMissingDir(t *testing.T) {
	_, err := GetBackupDBPaths(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
