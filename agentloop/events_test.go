package agentloop

import (
	"testing"
)

func TestEmitterDeliversInOrder(t *testing.T) {
	e := NewEventEmitter("s1", 8)
	e.Emit(EventUserInput, map[string]interface{}{"content": "hi"})
	e.Emit(EventSessionEnd, nil)
	e.Close()

	var kinds []EventKind
	for ev := range e.Events() {
		kinds = append(kinds, ev.Kind)
		if ev.SessionID != "s1" {
			t.Errorf("session id: %s", ev.SessionID)
		}
		if ev.Timestamp.IsZero() {
			t.Error("zero timestamp")
		}
	}
	if len(kinds) != 2 || kinds[0] != EventUserInput || kinds[1] != EventSessionEnd {
		t.Errorf("kinds: %v", kinds)
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("s1", 1)
	e.Emit(EventUserInput, nil)
	// Buffer full and nobody reading: must not block.
	e.Emit(EventWarning, nil)
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("got %d events, want 1", count)
	}
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	e := NewEventEmitter("s1", 4)
	e.Close()
	e.Close()
	// Emitting after close is a silent no-op.
	e.Emit(EventUserInput, nil)
}
