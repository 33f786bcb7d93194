// Package database opens the gorm connections behind the replay stores:
// Postgres for shared storage, SQLite (file or in-memory) for local runs.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/model"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errNotConnected = errors.New("db not connected")

var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
}

// Manager owns one gorm connection.
type Manager struct {
	DB *gorm.DB
	// SqliteFilePath is used by ConnectSqlite callers and as the Postgres
	// fallback. Empty means in-memory.
	SqliteFilePath string

	log   zerolog.Logger
	pool  *sql.DB
	local bool
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

// Local reports whether the connection is SQLite.
func (m *Manager) Local() bool {
	return m.local
}

// Connect opens Postgres and falls back to SQLite at SqliteFilePath when
// the server cannot be reached.
func (m *Manager) Connect(cfg config.DBConfig) error {
	db, err := GetPostgresDB(cfg)
	if err == nil {
		err = m.adopt(db)
	}
	if err == nil {
		err = m.pool.Ping()
	}
	if err != nil {
		if m.pool != nil {
			_ = m.Close()
		}
		m.log.Error().Err(err).Str("host", cfg.Host).Msg("Postgres unreachable, falling back to SQLite")
		return m.ConnectSqlite(m.SqliteFilePath)
	}

	m.pool.SetMaxOpenConns(10)
	m.local = false
	m.log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connected to Postgres")
	return nil
}

// ConnectSqlite opens the SQLite database at path, in memory when empty.
func (m *Manager) ConnectSqlite(path string) error {
	db, err := GetSqliteDB(path)
	if err != nil {
		return fmt.Errorf("failed to open SQLite: %w", err)
	}
	if err := m.adopt(db); err != nil {
		return err
	}
	m.local = true

	ev := m.log.Info()
	if path == "" {
		ev.Msg("Using in-memory SQLite")
	} else {
		ev.Str("path", path).Msg("Using SQLite file")
	}
	return nil
}

func (m *Manager) adopt(db *gorm.DB) error {
	pool, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	m.DB, m.pool = db, pool
	return nil
}

// Setup migrates the replay schema.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return errNotConnected
	}
	if err := Migrate(m.DB); err != nil {
		return err
	}
	m.log.Info().Str("dialect", m.DB.Dialector.Name()).Msg("Schema migrated")
	return nil
}

// DumpMemoryToDisk writes the connected database to path.
func (m *Manager) DumpMemoryToDisk(path string) error {
	start := time.Now()
	if err := DumpMemoryDBToDisk(m.DB, path); err != nil {
		return err
	}
	m.log.Debug().Dur("took", time.Since(start)).Str("path", path).Msg("Dumped SQLite to disk")
	return nil
}

func (m *Manager) Close() error {
	if m.pool == nil {
		return nil
	}
	pool := m.pool
	m.pool, m.DB = nil, nil
	return pool.Close()
}

// Migrate creates or updates every replay table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// GetBackupDBPaths lists the .db files directly under dir, sorted.
func GetBackupDBPaths(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return filepath.Glob(filepath.Join(dir, "*.db"))
}

// PostgresDSN formats the connection string for cfg.
func PostgresDSN(cfg config.DBConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
}

func gormConfig(batch int) *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		CreateBatchSize:        batch,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// GetPostgresDB opens a Postgres connection. The server is not contacted
// until first use.
func GetPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	dialector := postgres.New(postgres.Config{DSN: PostgresDSN(cfg), PreferSimpleProtocol: true})
	return gorm.Open(dialector, gormConfig(10000))
}

var memoryDBSeq atomic.Uint64

// GetSqliteDB opens the SQLite file at path. An empty path gives a fresh
// in-memory database shared by the pool's connections.
func GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:racesim-%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
	}

	cfg := gormConfig(2000)
	cfg.PrepareStmt = true
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("setting %q: %w", p, err)
		}
	}
	return db, nil
}

// DumpMemoryDBToDisk replaces the file at path with a VACUUM copy of db.
func DumpMemoryDBToDisk(db *gorm.DB, path string) error {
	switch {
	case path == "":
		return errors.New("sqlite dump path not set")
	case db == nil:
		return errNotConnected
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing old dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO 'file:" + path + "';").Error; err != nil {
		return fmt.Errorf("dumping SQLite to %s: %w", path, err)
	}
	return nil
}
