// Package remote implements the storage.Backend interface by posting replay
// batches to a replay server over HTTP.
package remote

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/racedqn/autopilot/internal/api"
	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/pkg/core"
)

// Backend forwards sessions and replay batches to the server.
type Backend struct {
	client  *api.Client
	mu      sync.RWMutex
	current string
}

var _ storage.Backend = (*Backend)(nil)

// New creates a remote backend for cfg.
func New(cfg config.RemoteConfig) *Backend {
	return &Backend{client: api.New(cfg.ServerURL, cfg.APIKey, cfg.Timeout)}
}

// Init checks that the server answers its healthcheck.
func (b *Backend) Init() error {
	if err := b.client.Healthcheck(); err != nil {
		return fmt.Errorf("replay server unavailable: %w", err)
	}
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

// StartSession registers the session on the server.
func (b *Backend) StartSession(s *core.Session) error {
	if err := b.client.CreateSession(*s); err != nil {
		return translate(err)
	}
	b.mu.Lock()
	b.current = s.ID
	b.mu.Unlock()
	return nil
}

// StoreTransitions posts the batch, filling in the current session id.
func (b *Backend) StoreTransitions(records []core.ReplayRecord) error {
	b.mu.RLock()
	current := b.current
	b.mu.RUnlock()

	batch := make([]core.ReplayRecord, len(records))
	for i, r := range records {
		if r.SessionID == "" {
			if current == "" {
				return storage.ErrNoSession
			}
			r.SessionID = current
		}
		batch[i] = r
	}
	return translate(b.client.PostReplay(batch))
}

// translate maps server status codes to the storage sentinel errors.
func translate(err error) error {
	var se *api.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Status {
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", storage.ErrConflict, se.Body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", storage.ErrNotFound, se.Body)
	}
	return err
}
