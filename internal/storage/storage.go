// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/racedqn/autopilot/pkg/core"
)

var (
	// ErrNotFound is returned when a record references a session that does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when a session id or a (session, seq) pair already exists.
	ErrConflict = errors.New("record already exists")
	// ErrNoSession is returned when transitions are stored before StartSession.
	ErrNoSession = errors.New("no session started")
)

// Backend is the interface all replay persistence implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// StartSession registers a training run. Records stored afterwards
	// without a session id are attributed to it.
	StartSession(s *core.Session) error

	// StoreTransitions writes a batch atomically: either every record is
	// stored or none is.
	StoreTransitions(records []core.ReplayRecord) error
}

// Reader is implemented by backends that can answer queries about stored data.
type Reader interface {
	GetSession(id string) (core.Session, error)
	CountTransitions(sessionID string) (int64, error)
}

// Exportable is an optional interface for backends that write a file on Close.
type Exportable interface {
	ExportedFilePath() string
}
