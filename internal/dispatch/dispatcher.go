// Package dispatch delivers "logged" notifications to in-process
// subscribers (delivery channels, integrations). Delivery is fire-and-forget:
// a slow or failing subscriber never affects the write that produced the
// notification.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/olegiv/eventlog-go/internal/model"
)

// LoggedEvent is the payload delivered to subscribers after a successful
// event write.
type LoggedEvent struct {
	// Row is the stored event as written.
	Row model.Event

	// Context holds the context map stored with the event.
	Context map[string]string

	// Logger is the slug of the logger that produced the event.
	Logger string
}

// Subscriber receives logged events. Implementations must tolerate
// concurrent calls; panics are recovered and logged.
type Subscriber func(ctx context.Context, ev *LoggedEvent)

// Config holds dispatcher configuration.
type Config struct {
	Workers   int // Number of concurrent delivery workers
	QueueSize int // Buffered queue capacity
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   3,
		QueueSize: 100,
	}
}

// Dispatcher fans logged events out to subscribers from a worker pool.
type Dispatcher struct {
	logger  *slog.Logger
	queue   chan *LoggedEvent
	workers int
	wg      sync.WaitGroup
	done    chan struct{}
	mu      sync.RWMutex
	running bool
	subs    []Subscriber
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		logger:  logger,
		queue:   make(chan *LoggedEvent, cfg.QueueSize),
		workers: cfg.Workers,
		done:    make(chan struct{}),
	}
}

// Subscribe registers a subscriber. Safe to call before or after Start.
func (d *Dispatcher) Subscribe(sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, sub)
}

// Start starts the dispatcher workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.logger.Info("starting event dispatcher", "workers", d.workers)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop stops the dispatcher and waits for workers to finish. Events still
// queued at shutdown are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
	d.logger.Info("event dispatcher stopped")
}

// Publish queues a logged event for delivery. Never blocks: when the queue
// is full or the dispatcher is not running, the notification is dropped with
// a warning.
func (d *Dispatcher) Publish(ev *LoggedEvent) {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		d.logger.Warn("dispatcher not running, dropping notification",
			"logger", ev.Logger, "event_id", ev.Row.ID)
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("notification queue full, dropping notification",
			"logger", ev.Logger, "event_id", ev.Row.ID)
	}
}

// worker processes queued events.
func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.logger.Debug("dispatch worker started", "worker_id", id)

	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

// deliver sends one event to every subscriber, isolating failures.
func (d *Dispatcher) deliver(ctx context.Context, ev *LoggedEvent) {
	d.mu.RLock()
	subs := make([]Subscriber, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, sub := range subs {
		d.safeDeliver(ctx, sub, ev)
	}
}

// safeDeliver invokes one subscriber, recovering from panics.
func (d *Dispatcher) safeDeliver(ctx context.Context, sub Subscriber, ev *LoggedEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscriber panicked",
				"panic", r, "logger", ev.Logger, "event_id", ev.Row.ID)
		}
	}()
	sub(ctx, ev)
}
