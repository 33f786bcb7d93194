// Package dispatcher routes named commands to handlers. A handler runs
// inline in the caller, or on its own goroutine behind a bounded queue so
// the simulation loop never waits on persistence.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrQueueFull is returned by non-blocking buffered handlers when their queue is full.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned when nothing is registered for a command.
	ErrUnknownCommand = errors.New("unknown command")
)

// Event is one unit of work routed by command name.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is the logging surface the dispatcher needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*routeOptions)

type routeOptions struct {
	queueSize int
	blocking  bool
	logged    bool
}

// Buffered runs the handler on a dedicated goroutine fed by a queue of size slots.
func Buffered(size int) Option {
	return func(o *routeOptions) { o.queueSize = size }
}

// Blocking makes a buffered handler wait for a free slot instead of failing with ErrQueueFull.
func Blocking() Option {
	return func(o *routeOptions) { o.blocking = true }
}

// Logged reports each event's start, duration and error.
func Logged() Option {
	return func(o *routeOptions) { o.logged = true }
}

type route struct {
	handle  HandlerFunc
	queue   chan Event // nil for inline handlers
	retired bool       // guarded by Dispatcher.mu
}

type instruments struct {
	depth     metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	log  Logger
	inst instruments

	mu      sync.RWMutex
	routes  map[string]*route
	closed  bool
	workers sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		log:    logger,
		routes: make(map[string]*route),
	}
	if err := d.instrument(otel.Meter("github.com/racedqn/autopilot/internal/dispatcher")); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) instrument(m metric.Meter) error {
	var err error
	if d.inst.depth, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Events waiting in each buffered queue"),
	); err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	if _, err = m.RegisterCallback(d.observeDepth, d.inst.depth); err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&d.inst.processed, "dispatcher.events.processed", "Buffered events handled"},
		{&d.inst.dropped, "dispatcher.events.dropped", "Events rejected because the queue was full"},
		{&d.inst.failed, "dispatcher.events.failed", "Buffered events whose handler returned an error"},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}
	return nil
}

func (d *Dispatcher) observeDepth(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, r := range d.routes {
		if r.queue != nil {
			o.ObserveInt64(d.inst.depth, int64(len(r.queue)),
				metric.WithAttributes(attribute.String("command", cmd)))
		}
	}
	return nil
}

// Register installs h for command, replacing any previous handler. A
// replaced buffered handler drains what it already queued and stops.
// Buffered wraps h first and logging wraps the result, so Logged on a
// buffered handler reports the enqueue. Registering after Close is a no-op.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Debug("ignoring registration after close", "command", command)
		return
	}
	if old, ok := d.routes[command]; ok {
		old.retire()
	}

	r := &route{handle: h}
	if o.queueSize > 0 {
		r.queue = make(chan Event, o.queueSize)
		d.startWorker(command, r.queue, h)
		r.handle = d.enqueuer(command, r, o.blocking)
	}
	if o.logged {
		r.handle = d.logged(command, r.handle)
	}
	d.routes[command] = r
}

// retire stops r from accepting events. The caller holds the write lock.
func (r *route) retire() {
	r.retired = true
	if r.queue != nil {
		close(r.queue)
	}
}

// Dispatch routes an event to its handler, stamping it if needed.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	r, ok := d.routes[e.Command]
	closed := d.closed
	d.mu.RUnlock()

	switch {
	case closed:
		return nil, ErrClosed
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	return r.handle(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Pending returns the number of queued events for a buffered command.
func (d *Dispatcher) Pending(command string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if r, ok := d.routes[command]; ok && r.queue != nil {
		return len(r.queue)
	}
	return 0
}

// Close stops accepting events and waits until every queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		r.retire()
	}
	d.mu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) startWorker(command string, queue <-chan Event, h HandlerFunc) {
	attrs := metric.WithAttributes(attribute.String("command", command))
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range queue {
			if _, err := h(e); err != nil {
				d.inst.failed.Add(context.Background(), 1, attrs)
			}
			d.inst.processed.Add(context.Background(), 1, attrs)
		}
	}()
}

// enqueuer holds the read lock while sending so neither Close nor a
// replacing Register can close the queue mid-send.
func (d *Dispatcher) enqueuer(command string, r *route, blocking bool) HandlerFunc {
	attrs := metric.WithAttributes(attribute.String("command", command))
	queue := r.queue
	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		switch {
		case d.closed:
			return nil, ErrClosed
		case r.retired:
			return nil, fmt.Errorf("%w: %s handler was replaced", ErrClosed, command)
		}
		if blocking {
			queue <- e
			return "queued", nil
		}
		select {
		case queue <- e:
			return "queued", nil
		default:
			d.inst.dropped.Add(context.Background(), 1, attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.log.Debug("handling event", "command", command, "payload", fmt.Sprintf("%T", e.Payload))

		result, err := h(e)
		if err != nil {
			d.log.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.log.Debug("event complete", "command", command, "duration", time.Since(start))
		return result, nil
	}
}
