package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventUserInput          EventKind = "user_input"
	EventTurnStart          EventKind = "turn_start"
	EventAssistantTextDelta EventKind = "assistant_text_delta"
	EventAssistantTextEnd   EventKind = "assistant_text_end"
	EventToolCallStart      EventKind = "tool_call_start"
	EventToolCallEnd        EventKind = "tool_call_end"
	EventPermissionDecision EventKind = "permission_decision"
	EventSteeringInjected   EventKind = "steering_injected"
	EventTurnLimit          EventKind = "turn_limit"
	EventLoopDetection      EventKind = "loop_detection"
	EventWarning            EventKind = "warning"
	EventError              EventKind = "error"
	EventSessionEnd         EventKind = "session_end"
)

// SessionEvent is a typed observation emitted by the loop. Events are
// advisory: the loop never blocks on a slow observer.
type SessionEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers session events to the host over a buffered channel.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// Emit sends an event. A closed emitter or a full buffer drops the event
// rather than stalling the loop.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Close closes the event channel. Safe to call more than once.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
