// Package dispatch runs classified events on a bounded pool of workers so
// ingress can acknowledge Slack within its response deadline.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/slackai/internal/event"
	"github.com/edgard/slackai/internal/logger"
)

// ErrQueueFull is returned by Enqueue when no queue slot is free.
var ErrQueueFull = errors.New("dispatch queue is full")

// ErrStopped is returned by Enqueue once the dispatcher has shut down.
var ErrStopped = errors.New("dispatcher stopped")

// Handler processes one event. It owns every side effect of the event,
// including user facing fallbacks.
type Handler interface {
	Handle(ctx context.Context, ev event.Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev event.Event)

// Handle calls f(ctx, ev).
func (f HandlerFunc) Handle(ctx context.Context, ev event.Event) { f(ctx, ev) }

// Dispatcher is a fixed size worker pool fed by a bounded queue.
type Dispatcher struct {
	handler Handler
	queue   chan event.Event
	workers int
	timeout time.Duration
	log     *slog.Logger

	mu      sync.RWMutex
	stopped bool
}

// New creates a dispatcher. Run must be called to start the workers.
func New(handler Handler, workers, queueSize int, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		handler: handler,
		queue:   make(chan event.Event, queueSize),
		workers: workers,
		timeout: timeout,
		log:     log.With("component", "dispatcher"),
	}
}

// Enqueue schedules ev without blocking.
func (d *Dispatcher) Enqueue(ev event.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		d.log.Warn("Dropping event, queue full", "kind", ev.Kind, "channel", ev.Channel)
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled and the queued
// events are drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("Starting dispatcher", "workers", d.workers, "queue_size", cap(d.queue))

	g := new(errgroup.Group)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for ev := range d.queue {
				d.process(ctx, ev)
			}
			return nil
		})
	}

	<-ctx.Done()
	d.mu.Lock()
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.log.Info("Shutdown signal received, draining dispatcher queue...", "pending", len(d.queue))
	err := g.Wait()
	d.log.Info("Dispatcher stopped.")
	return err
}

// process runs one event with its own deadline and request-scoped logger.
// The event context is detached from ctx so shutdown does not cancel events
// already running or still queued; the event timeout bounds them.
func (d *Dispatcher) process(ctx context.Context, ev event.Event) {
	evCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	evCtx, log := logger.WithRequestID(evCtx, d.log)
	log = log.With("kind", ev.Kind, "channel", ev.Channel, "user", ev.User)

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(evCtx, "Event handler panicked", "panic", r)
		}
	}()

	start := time.Now()
	log.DebugContext(evCtx, "Handling event")
	d.handler.Handle(logger.NewContext(evCtx, log), ev)
	log.InfoContext(evCtx, "Finished handling event", "duration", time.Since(start))
}
