package logger

import (
	"sync"

	"github.com/olegiv/eventlog-go/internal/dispatch"
	"github.com/olegiv/eventlog-go/internal/store"
)

// Factory hands out one Logger per subsystem slug, sharing the store,
// gate, recovery and dispatcher collaborators.
type Factory struct {
	store      *store.Store
	recovery   *store.Recovery
	gate       *Gate
	dispatcher *dispatch.Dispatcher
	opts       Options

	mu      sync.Mutex
	loggers map[string]*Logger
}

// NewFactory creates a logger factory.
func NewFactory(st *store.Store, recovery *store.Recovery, gate *Gate, dispatcher *dispatch.Dispatcher, opts Options) *Factory {
	return &Factory{
		store:      st,
		recovery:   recovery,
		gate:       gate,
		dispatcher: dispatcher,
		opts:       opts,
		loggers:    make(map[string]*Logger),
	}
}

// Get returns the logger for a slug, creating it on first use.
func (f *Factory) Get(slug string) *Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.loggers[slug]; ok {
		return l
	}
	l := New(slug, f.store, f.recovery, f.gate, f.dispatcher, f.opts)
	f.loggers[slug] = l
	return l
}

// Gate returns the shared pausable gate.
func (f *Factory) Gate() *Gate {
	return f.gate
}
