// Package sqlitestorage keeps replay data in an in-memory SQLite database
// and snapshots it to disk with VACUUM INTO, periodically and on Close.
// Queries and writes are the gorm backend's.
package sqlitestorage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/racedqn/autopilot/internal/database"
	"github.com/racedqn/autopilot/internal/storage"
	gormstorage "github.com/racedqn/autopilot/internal/storage/gorm"
	"github.com/rs/zerolog"
)

type Config struct {
	DumpInterval time.Duration
	// DumpPath empty disables dumping.
	DumpPath string
	// DBLog receives connection events; the zero value discards them.
	DBLog zerolog.Logger
}

type Backend struct {
	*gormstorage.Backend
	cfg Config
	log *slog.Logger
	dbm *database.Manager

	stop      context.CancelFunc
	loop      sync.WaitGroup
	closeOnce sync.Once
	exported  string
}

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Exportable = (*Backend)(nil)
)

func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dbm := database.NewManager(cfg.DBLog)
	if err := dbm.ConnectSqlite(""); err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: dbm.DB, Logger: logger}),
		cfg:     cfg,
		log:     logger.With("backend", "sqlite"),
		dbm:     dbm,
		stop:    func() {},
	}, nil
}

// Init migrates the schema and starts the periodic dump.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" || b.cfg.DumpInterval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.stop = cancel
	b.loop.Add(1)
	go func() {
		defer b.loop.Done()
		b.dumpEvery(ctx, b.cfg.DumpInterval)
	}()
	return nil
}

// Close writes a final dump and closes the database. Later calls are no-ops.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.stop()
		b.loop.Wait()
		if b.cfg.DumpPath != "" {
			if err = b.Dump(); err == nil {
				b.exported = b.cfg.DumpPath
			}
		}
		if cerr := b.dbm.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// Dump snapshots the database to DumpPath.
func (b *Backend) Dump() error {
	return b.dbm.DumpMemoryToDisk(b.cfg.DumpPath)
}

// ExportedFilePath is the final dump, set once Close succeeds.
func (b *Backend) ExportedFilePath() string {
	return b.exported
}

func (b *Backend) dumpEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.log.Error("Periodic dump failed", "path", b.cfg.DumpPath, "error", err)
			}
		}
	}
}
