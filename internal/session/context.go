package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/racedqn/autopilot/pkg/core"
)

// Context holds the current training session
type Context struct {
	mu      sync.RWMutex
	session core.Session
}

// NewContext creates a Context with no session started
func NewContext() *Context {
	return &Context{
		session: core.Session{SceneName: "No session started"},
	}
}

// Start begins a new session with a fresh uuid and makes it current
func (c *Context) Start(sceneName string, trackLength float64, now time.Time) core.Session {
	s := core.Session{
		ID:          uuid.NewString(),
		SceneName:   sceneName,
		StartedAt:   now.UTC(),
		TrackLength: trackLength,
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s
}

// Get returns the current session
func (c *Context) Get() core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Started reports whether Start has been called
func (c *Context) Started() bool {
	return c.Get().ID != ""
}

// LogAttrs is a logging.ContextProvider adding the session to every record
func (c *Context) LogAttrs() []slog.Attr {
	s := c.Get()
	if s.ID == "" {
		return nil
	}
	return []slog.Attr{
		slog.String("session", s.ID),
		slog.String("scene", s.SceneName),
	}
}
