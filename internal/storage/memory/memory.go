// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"

	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/pkg/core"
)

// SessionRecord groups a session with every replay record stored for it
type SessionRecord struct {
	Session core.Session
	Records []core.ReplayRecord
	seqs    map[uint64]struct{}
}

// Backend keeps replay records in memory and exports them to JSON on Close
type Backend struct {
	cfg      config.MemoryConfig
	sessions map[string]*SessionRecord
	order    []string
	current  string

	lastExportPath string
	mu             sync.RWMutex
}

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Reader     = (*Backend)(nil)
	_ storage.Exportable = (*Backend)(nil)
)

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		sessions: make(map[string]*SessionRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports every session when an output directory is configured
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.OutputDir == "" {
		return nil
	}
	for _, id := range b.order {
		if err := b.exportJSON(b.sessions[id]); err != nil {
			return err
		}
	}
	return nil
}

// StartSession registers a session and makes it current
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[s.ID]; ok {
		return fmt.Errorf("session %s: %w", s.ID, storage.ErrConflict)
	}
	b.sessions[s.ID] = &SessionRecord{
		Session: *s,
		seqs:    make(map[uint64]struct{}),
	}
	b.order = append(b.order, s.ID)
	b.current = s.ID
	return nil
}

// StoreTransitions validates the whole batch before appending any of it
func (b *Backend) StoreTransitions(records []core.ReplayRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	type key struct {
		session string
		seq     uint64
	}
	pending := make(map[key]struct{}, len(records))
	targets := make([]*SessionRecord, len(records))

	for i, r := range records {
		id := r.SessionID
		if id == "" {
			id = b.current
		}
		if id == "" {
			return storage.ErrNoSession
		}
		rec, ok := b.sessions[id]
		if !ok {
			return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
		}
		k := key{id, r.Seq}
		if _, dup := rec.seqs[r.Seq]; dup {
			return fmt.Errorf("session %s seq %d: %w", id, r.Seq, storage.ErrConflict)
		}
		if _, dup := pending[k]; dup {
			return fmt.Errorf("session %s seq %d: %w", id, r.Seq, storage.ErrConflict)
		}
		pending[k] = struct{}{}
		targets[i] = rec
	}

	for i, r := range records {
		rec := targets[i]
		r.SessionID = rec.Session.ID
		rec.Records = append(rec.Records, r)
		rec.seqs[r.Seq] = struct{}{}
	}
	return nil
}

// GetSession returns a registered session
func (b *Backend) GetSession(id string) (core.Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.sessions[id]
	if !ok {
		return core.Session{}, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return rec.Session, nil
}

// CountTransitions returns how many records a session holds
func (b *Backend) CountTransitions(sessionID string) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("session %s: %w", sessionID, storage.ErrNotFound)
	}
	return int64(len(rec.Records)), nil
}

// Records returns a copy of the records stored for a session in insertion order
func (b *Backend) Records(sessionID string) []core.ReplayRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]core.ReplayRecord, len(rec.Records))
	copy(out, rec.Records)
	return out
}

// ExportedFilePath returns the path of the last exported file, if any
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
