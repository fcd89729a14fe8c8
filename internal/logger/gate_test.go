package logger

import "testing"

func TestGate(t *testing.T) {
	g := NewGate()

	if g.Paused() {
		t.Error("new gate is paused")
	}
	g.Pause()
	if !g.Paused() {
		t.Error("Pause did not pause")
	}
	g.Pause() // idempotent
	g.Resume()
	if g.Paused() {
		t.Error("Resume did not resume")
	}
}
