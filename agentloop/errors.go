package agentloop

import "errors"

var (
	// ErrTurnLimit is returned when a session reaches its MaxTurns bound
	// before the model produced a text-only response.
	ErrTurnLimit = errors.New("turn limit reached")

	// ErrTurnTimeout is returned when a single turn exceeds its wall-clock
	// budget.
	ErrTurnTimeout = errors.New("turn timed out")

	// ErrSessionBusy is returned when Execute is called while another
	// Execute is still running on the same session.
	ErrSessionBusy = errors.New("session is busy")

	// ErrSessionClosed is returned when Execute is called after Close.
	ErrSessionClosed = errors.New("session is closed")
)
