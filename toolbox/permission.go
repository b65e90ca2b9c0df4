package toolbox

import (
	"context"
	"encoding/json"
)

// Mode is the active safety mode for a session.
type Mode string

const (
	// ModeAsk routes every non-none tool to an interactive confirmation.
	ModeAsk Mode = "ask"
	// ModeYolo auto-approves moderate tools; dangerous ones still prompt.
	ModeYolo Mode = "yolo"
	// ModePlan denies everything that is not read-only.
	ModePlan Mode = "plan"
)

// Outcome is a gate decision.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
	OutcomeAsk   Outcome = "ask"
)

// Decision records how one call was resolved. Ephemeral; never persisted.
type Decision struct {
	ToolName      string
	InputSnapshot json.RawMessage
	Outcome       Outcome
	ResolvedBy    string // "policy" or "user"
}

// ConfirmFunc is the prompt boundary supplied by the host UI. It blocks until
// the user answers or ctx is cancelled.
type ConfirmFunc func(ctx context.Context, toolName string, input json.RawMessage, dangerLabel string) (bool, error)

// Gate applies the permission policy table. Pure decision logic; its only
// I/O is the confirm callback.
type Gate struct {
	mode    Mode
	confirm ConfirmFunc
}

// NewGate creates a Gate. A nil confirm turns every ask outcome into a deny.
func NewGate(mode Mode, confirm ConfirmFunc) *Gate {
	if mode == "" {
		mode = ModeAsk
	}
	return &Gate{mode: mode, confirm: confirm}
}

// Mode returns the active safety mode.
func (g *Gate) Mode() Mode { return g.mode }

// Check applies the policy table to a permission class:
//
//	class none      -> allow in every mode
//	mode plan       -> deny anything else (read-only enforcement)
//	mode yolo       -> allow moderate, ask for dangerous
//	mode ask        -> ask for anything else
func (g *Gate) Check(class PermissionClass) Outcome {
	if class == PermissionNone || class == "" {
		return OutcomeAllow
	}
	switch g.mode {
	case ModePlan:
		return OutcomeDeny
	case ModeYolo:
		if class == PermissionModerate {
			return OutcomeAllow
		}
		return OutcomeAsk
	default:
		return OutcomeAsk
	}
}

// Authorize resolves a call end to end: policy first, then the interactive
// prompt for ask outcomes. The prompt is cancellable; a cancelled ctx unwinds
// the wait and returns ctx's error.
func (g *Gate) Authorize(ctx context.Context, def Definition, input json.RawMessage) (Decision, error) {
	d := Decision{ToolName: def.Name, InputSnapshot: input, ResolvedBy: "policy"}

	switch g.Check(def.Permission) {
	case OutcomeAllow:
		d.Outcome = OutcomeAllow
		return d, nil
	case OutcomeDeny:
		d.Outcome = OutcomeDeny
		return d, nil
	}

	if g.confirm == nil {
		d.Outcome = OutcomeDeny
		return d, nil
	}

	type answer struct {
		ok  bool
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		ok, err := g.confirm(ctx, def.Name, input, string(def.Permission))
		ch <- answer{ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return Decision{}, a.err
		}
		d.ResolvedBy = "user"
		if a.ok {
			d.Outcome = OutcomeAllow
		} else {
			d.Outcome = OutcomeDeny
		}
		return d, nil
	}
}
