package logger

import "sync/atomic"

// Gate silences logging process-wide while bulk or administrative
// operations run. Default is open; a paused gate must be explicitly resumed.
type Gate struct {
	paused atomic.Bool
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Pause makes every Log call a no-op until Resume is called.
func (g *Gate) Pause() {
	g.paused.Store(true)
}

// Resume re-enables logging.
func (g *Gate) Resume() {
	g.paused.Store(false)
}

// Paused reports whether logging is currently paused.
func (g *Gate) Paused() bool {
	return g.paused.Load()
}
