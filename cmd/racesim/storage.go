package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/internal/storage/memory"
	pgstorage "github.com/racedqn/autopilot/internal/storage/postgres"
	"github.com/racedqn/autopilot/internal/storage/remote"
	sqlitestorage "github.com/racedqn/autopilot/internal/storage/sqlite"
)

func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			Config: config.GetDBConfig(),
			Logger: Logger,
		}), nil

	case "sqlite":
		dumpPath := sessionDumpPath(storageCfg.SQLite.DumpPath)
		if dumpPath != "" {
			if err := os.MkdirAll(filepath.Dir(dumpPath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create dump directory: %w", err)
			}
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
			DBLog:        DBLogger,
		}, Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "dump", dumpPath)
		return backend, nil

	case "remote":
		Logger.Info("Remote storage backend initialized", "url", storageCfg.Remote.ServerURL)
		return remote.New(storageCfg.Remote), nil

	case "memory":
		Logger.Info("Memory storage backend initialized", "output", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// sessionDumpPath stamps the configured dump file with the session start so
// consecutive runs do not overwrite each other.
func sessionDumpPath(path string) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".db"
	}
	return fmt.Sprintf("%s_%s%s", base, SessionStartTime.Format("20060102_150405"), ext)
}
