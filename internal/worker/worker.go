package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/racedqn/autopilot/internal/dispatcher"
	"github.com/racedqn/autopilot/internal/model/convert"
	"github.com/racedqn/autopilot/internal/session"
	"github.com/racedqn/autopilot/internal/storage"
	"github.com/racedqn/autopilot/pkg/core"
)

// Commands handled by the worker.
const (
	CommandSessionStart   = ":SESSION:START:"
	CommandReplayPersist  = ":REPLAY:PERSIST:"
	defaultPersistBacklog = 16
)

// ErrBadPayload is returned when an event carries the wrong payload type
var ErrBadPayload = errors.New("unexpected event payload")

// PersistBatch is the payload of CommandReplayPersist
type PersistBatch struct {
	FirstSeq    uint64
	Transitions []core.Transition
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger  *slog.Logger
	Session *session.Context
	// PersistBacklog is the number of batches buffered before new ones are dropped.
	PersistBacklog int
}

// Manager turns dispatcher events into storage calls
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	stored  atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	if deps.PersistBacklog <= 0 {
		deps.PersistBacklog = defaultPersistBacklog
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session start is sync: records must not be sent before the server knows it
	d.Register(CommandSessionStart, m.handleSessionStart, dispatcher.Logged())
	// Replay batches are fire-and-forget; a full queue drops the batch
	d.Register(CommandReplayPersist, m.handlePersist, dispatcher.Buffered(m.deps.PersistBacklog), dispatcher.Logged())
}

// PersistHook returns a function suitable for sim.WithPersistHook that
// hands batches to the dispatcher without blocking the caller.
func (m *Manager) PersistHook(d *dispatcher.Dispatcher) func(firstSeq uint64, ts []core.Transition) {
	return func(firstSeq uint64, ts []core.Transition) {
		_, err := d.Dispatch(dispatcher.Event{
			Command: CommandReplayPersist,
			Payload: PersistBatch{FirstSeq: firstSeq, Transitions: ts},
		})
		if err != nil {
			m.dropped.Add(1)
			m.deps.Logger.Warn("Replay batch dropped", "first_seq", firstSeq, "error", err)
		}
	}
}

// Stats returns the number of stored, failed and dropped batches.
func (m *Manager) Stats() (stored, failed, dropped uint64) {
	return m.stored.Load(), m.failed.Load(), m.dropped.Load()
}

func (m *Manager) handleSessionStart(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(core.Session)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrBadPayload, e.Payload)
	}
	if err := m.backend.StartSession(&s); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s.ID, nil
}

func (m *Manager) handlePersist(e dispatcher.Event) (any, error) {
	batch, ok := e.Payload.(PersistBatch)
	if !ok {
		m.failed.Add(1)
		return nil, fmt.Errorf("%w: %T", ErrBadPayload, e.Payload)
	}
	if len(batch.Transitions) == 0 {
		return nil, nil
	}

	sess := m.deps.Session.Get()
	records := convert.TransitionsToRecords(sess.ID, batch.FirstSeq, batch.Transitions)
	if err := m.backend.StoreTransitions(records); err != nil {
		m.failed.Add(1)
		m.deps.Logger.Error("Failed to persist replay batch",
			"first_seq", batch.FirstSeq,
			"size", len(records),
			"error", err,
		)
		return nil, err
	}
	m.stored.Add(1)
	return len(records), nil
}
