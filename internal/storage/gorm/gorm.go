// Package gormstorage implements the storage.Backend interface on any GORM
// dialect. The sqlite and postgres backends embed it.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/racedqn/autopilot/internal/database"
	"github.com/racedqn/autopilot/internal/model"
	"github.com/racedqn/autopilot/internal/model/convert"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/pkg/core"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend implements storage.Backend with synchronous GORM writes.
type Backend struct {
	deps    Dependencies
	mu      sync.RWMutex
	current string
}

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Reader  = (*Backend)(nil)
)

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// DB exposes the underlying handle.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database")
	}
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.deps.Logger.Info("Replay schema ready", "dialect", b.deps.DB.Dialector.Name())
	return nil
}

// Close is a no-op; the connection belongs to whoever opened it.
func (b *Backend) Close() error {
	return nil
}

// StartSession inserts the session row and makes it current.
func (b *Backend) StartSession(s *core.Session) error {
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("session %s: %w", s.ID, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}

	b.mu.Lock()
	b.current = s.ID
	b.mu.Unlock()
	return nil
}

// CurrentSession returns the id set by the last StartSession.
func (b *Backend) CurrentSession() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// StoreTransitions inserts the batch in one transaction. Every referenced
// session must exist and no (session, seq) pair may already be stored.
func (b *Backend) StoreTransitions(records []core.ReplayRecord) error {
	if len(records) == 0 {
		return nil
	}

	fallback := b.CurrentSession()
	rows := make([]model.ReplayTransition, 0, len(records))
	for _, r := range records {
		if r.SessionID == "" && fallback == "" {
			return storage.ErrNoSession
		}
		row, err := convert.RecordToTransition(fallback, r)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	ids := lo.Uniq(lo.Map(rows, func(r model.ReplayTransition, _ int) string { return r.SessionID }))
	var found int64
	if err := b.deps.DB.Model(&model.Session{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
		return fmt.Errorf("failed to look up sessions: %w", err)
	}
	if int(found) != len(ids) {
		return fmt.Errorf("%v: %w", ids, storage.ErrNotFound)
	}

	err := b.deps.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("replay batch: %w", storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert replay batch: %w", err)
	}
	return nil
}

// GetSession loads one session.
func (b *Backend) GetSession(id string) (core.Session, error) {
	var row model.Session
	err := b.deps.DB.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Session{}, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return convert.SessionToCore(row), nil
}

// CountTransitions returns how many records a session holds.
func (b *Backend) CountTransitions(sessionID string) (int64, error) {
	if _, err := b.GetSession(sessionID); err != nil {
		return 0, err
	}
	var n int64
	if err := b.deps.DB.Model(&model.ReplayTransition{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count transitions: %w", err)
	}
	return n, nil
}

// ListTransitions returns records of a session ordered by seq.
func (b *Backend) ListTransitions(sessionID string, offset, limit int) ([]core.ReplayRecord, error) {
	var rows []model.ReplayTransition
	err := b.deps.DB.
		Where("session_id = ?", sessionID).
		Order("seq").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}

	out := make([]core.ReplayRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := convert.ReplayTransitionToRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// isDuplicate recognises unique violations whether or not the dialect translates them.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
