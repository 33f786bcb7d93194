// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with an internal queue and a background DB writer goroutine.
package postgres

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/database"
	"github.com/racedqn/autopilot/internal/model/convert"
	"github.com/racedqn/autopilot/internal/queue"
	"github.com/racedqn/autopilot/internal/storage"
	gormstorage "github.com/racedqn/autopilot/internal/storage/gorm"
	"github.com/racedqn/autopilot/pkg/core"

	"gorm.io/gorm"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultQueueLimit    = 1000
)

// ErrNotInitialized is returned by calls made before Init succeeds.
var ErrNotInitialized = errors.New("postgres backend not initialized")

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	// DB is used as-is when set; otherwise Init connects with Config.
	DB     *gorm.DB
	Config config.DBConfig
	Logger *slog.Logger

	// FlushInterval is how often queued batches are written.
	FlushInterval time.Duration
	// QueueLimit caps the number of pending batches; the oldest are dropped.
	QueueLimit int
}

// Backend queues replay batches and writes them from a background goroutine.
type Backend struct {
	*gormstorage.Backend
	deps    Dependencies
	pending *queue.Queue[[]core.ReplayRecord]
	written atomic.Uint64
	failed  atomic.Uint64

	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once
}

// New creates a new Postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	if deps.QueueLimit <= 0 {
		deps.QueueLimit = defaultQueueLimit
	}
	return &Backend{deps: deps}
}

// Init connects if needed, migrates the schema and starts the DB writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB(b.deps.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{DB: b.deps.DB, Logger: b.deps.Logger})
	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.pending = queue.NewBounded[[]core.ReplayRecord](b.deps.QueueLimit)
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.dbWriter()
	return nil
}

func (b *Backend) ready() error {
	if b.Backend == nil || b.pending == nil {
		return ErrNotInitialized
	}
	return nil
}

// Close stops the writer after a final flush.
func (b *Backend) Close() error {
	b.once.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.done
	})
	return nil
}

// StoreTransitions validates and queues the batch. Session stamping happens
// here so a later StartSession does not re-attribute queued records.
func (b *Backend) StoreTransitions(records []core.ReplayRecord) error {
	if err := b.ready(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	current := b.CurrentSession()
	batch := make([]core.ReplayRecord, len(records))
	for i, r := range records {
		if r.SessionID == "" {
			if current == "" {
				return storage.ErrNoSession
			}
			r.SessionID = current
		}
		if _, err := convert.RecordToTransition(r.SessionID, r); err != nil {
			return err
		}
		batch[i] = r
	}

	if dropped := b.pending.Push(batch); dropped > 0 {
		b.deps.Logger.Warn("Replay write queue full, dropped oldest batches", "dropped", dropped)
	}
	return nil
}

func (b *Backend) StartSession(s *core.Session) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.Backend.StartSession(s)
}

func (b *Backend) CurrentSession() string {
	if b.Backend == nil {
		return ""
	}
	return b.Backend.CurrentSession()
}

func (b *Backend) GetSession(id string) (core.Session, error) {
	if err := b.ready(); err != nil {
		return core.Session{}, err
	}
	return b.Backend.GetSession(id)
}

func (b *Backend) CountTransitions(sessionID string) (int64, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	return b.Backend.CountTransitions(sessionID)
}

func (b *Backend) ListTransitions(sessionID string, offset, limit int) ([]core.ReplayRecord, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.Backend.ListTransitions(sessionID, offset, limit)
}

// Stats reports how many batches were written and how many failed.
func (b *Backend) Stats() (written, failed, dropped uint64) {
	var d uint64
	if b.pending != nil {
		d = b.pending.Dropped()
	}
	return b.written.Load(), b.failed.Load(), d
}

// Flush writes every queued batch now. It does nothing before Init.
func (b *Backend) Flush() {
	if b.ready() != nil {
		return
	}
	for _, batch := range b.pending.TakeAll() {
		err := b.Backend.StoreTransitions(batch)
		switch {
		case err == nil:
			b.written.Add(1)
		case errors.Is(err, storage.ErrConflict):
			b.failed.Add(1)
			b.deps.Logger.Warn("Replay batch already stored", "session", batch[0].SessionID, "first_seq", batch[0].Seq)
		default:
			b.failed.Add(1)
			b.deps.Logger.Error("Failed to write replay batch", "error", err, "size", len(batch))
		}
	}
}

// dbWriter periodically drains the queue into the DB.
func (b *Backend) dbWriter() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
