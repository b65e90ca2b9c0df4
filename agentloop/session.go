package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/martinemde/agentd/llmstream"
	"github.com/martinemde/agentd/tieredcache"
	"github.com/martinemde/agentd/toolbox"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	StateAwaitingInput SessionState = "awaiting_input"
	StateStreaming     SessionState = "streaming"
	StateCompleted     SessionState = "completed"
	StateAborted       SessionState = "aborted"
	StateClosed        SessionState = "closed"
)

// Streamer is the LLM boundary the loop drives. Satisfied by
// *llmstream.Client; tests substitute scripted implementations.
type Streamer interface {
	Stream(ctx context.Context, req llmstream.Request) (<-chan llmstream.Event, error)
}

// Session orchestrates the turn loop: stream a model response, dispatch the
// tool calls it requested through the gate and registry, feed the results
// back, repeat until the model answers with text alone or a bound trips.
//
// A session runs one Execute at a time. History is written only by the loop
// goroutine; the mutex guards state, the steering queues, and nothing else.
type Session struct {
	id       string
	streamer Streamer
	registry *toolbox.Registry
	gate     *toolbox.Gate
	cache    *tieredcache.Cache
	emitter  *EventEmitter
	config   SessionConfig
	history  *History

	mu            sync.Mutex
	state         SessionState
	running       bool
	steeringQueue []string
	followupQueue []string
}

// NewSession creates a session. A nil config uses the defaults; the gate may
// not be nil (use toolbox.NewGate with a nil confirm for headless hosts).
func NewSession(streamer Streamer, registry *toolbox.Registry, gate *toolbox.Gate, config *SessionConfig) *Session {
	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}
	sessionID := uuid.New().String()
	return &Session{
		id:       sessionID,
		streamer: streamer,
		registry: registry,
		gate:     gate,
		emitter:  NewEventEmitter(sessionID, 256),
		config:   cfg,
		history:  NewHistory(),
		state:    StateAwaitingInput,
	}
}

// SetCache attaches the tiered cache used to memoize read-only tool results.
// Optional; a session without a cache executes every call.
func (s *Session) SetCache(cache *tieredcache.Cache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = cache
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	return s.history.Messages()
}

// TurnCount returns how many LLM calls this session has made.
func (s *Session) TurnCount() int {
	return s.history.TurnCount()
}

// Events returns the session event channel.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Steer queues a message to inject after the current tool round.
func (s *Session) Steer(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steeringQueue = append(s.steeringQueue, message)
}

// FollowUp queues an input to process once the current one completes.
func (s *Session) FollowUp(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followupQueue = append(s.followupQueue, message)
}

// Close terminates the session. Further Execute calls fail with
// ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.emitter.Emit(EventSessionEnd, map[string]interface{}{"state": string(StateClosed)})
	s.emitter.Close()
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Execute runs one user input through the loop and returns the model's final
// text response. It blocks until the session completes, aborts, or ctx is
// cancelled. Queued follow-up inputs are processed before it returns.
func (s *Session) Execute(ctx context.Context, userInput string) (string, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	if s.running {
		s.mu.Unlock()
		return "", ErrSessionBusy
	}
	s.running = true
	s.state = StateStreaming
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.history.Append(NewUserMessage(userInput))
	s.emitter.Emit(EventUserInput, map[string]interface{}{"content": userInput})
	s.drainSteering()

	for {
		if err := ctx.Err(); err != nil {
			s.abort(err)
			return "", err
		}

		if s.config.MaxTurns > 0 && s.history.TurnCount() >= s.config.MaxTurns {
			s.setState(StateAborted)
			s.emitter.Emit(EventTurnLimit, map[string]interface{}{"turns": s.history.TurnCount()})
			return "", fmt.Errorf("%w after %d turns", ErrTurnLimit, s.history.TurnCount())
		}

		finalText, done, err := s.runTurn(ctx)
		if err != nil {
			s.abort(err)
			return "", err
		}
		if !done {
			continue
		}

		// Natural completion. A queued follow-up restarts the loop as the
		// next user input.
		if next, ok := s.nextFollowup(); ok {
			s.history.Append(NewUserMessage(next))
			s.emitter.Emit(EventUserInput, map[string]interface{}{"content": next, "followup": true})
			continue
		}
		s.setState(StateCompleted)
		s.emitter.Emit(EventSessionEnd, map[string]interface{}{"state": string(StateCompleted)})
		return finalText, nil
	}
}

func (s *Session) abort(err error) {
	s.setState(StateAborted)
	s.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})
}

// runTurn performs one LLM call and, if the model requested tools, the tool
// round that follows. Both live under the same per-turn deadline. done is
// true when the model answered with text alone.
func (s *Session) runTurn(ctx context.Context) (finalText string, done bool, err error) {
	turnCtx := ctx
	cancel := context.CancelFunc(func() {})
	if s.config.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, s.config.TurnTimeout)
	}
	defer cancel()

	s.history.bumpTurn()
	s.emitter.Emit(EventTurnStart, map[string]interface{}{"turn": s.history.TurnCount()})

	text, calls, usage, err := s.streamTurn(turnCtx)
	if err != nil {
		return "", false, s.classifyTurnErr(ctx, turnCtx, err)
	}

	s.history.Append(NewAssistantMessage(text, calls))
	data := map[string]interface{}{"text": text, "tool_calls": len(calls)}
	if usage != nil {
		data["input_tokens"] = usage.InputTokens
		data["output_tokens"] = usage.OutputTokens
	}
	s.emitter.Emit(EventAssistantTextEnd, data)

	if len(calls) == 0 {
		return text, true, nil
	}

	results := s.dispatchToolRound(turnCtx, calls)
	for i, call := range calls {
		content := TruncateToolOutput(results[i].Text(), call.Name, s.config.ToolOutputLimits, s.config.ToolLineLimits)
		s.history.Append(NewToolMessage(call, content, !results[i].Success))
	}
	if turnCtx.Err() != nil {
		return "", false, s.classifyTurnErr(ctx, turnCtx, turnCtx.Err())
	}

	s.drainSteering()
	s.checkForLoop()
	return "", false, nil
}

// classifyTurnErr separates the caller cancelling the session from the turn
// deadline firing on its own.
func (s *Session) classifyTurnErr(ctx, turnCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if turnCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %s", ErrTurnTimeout, s.config.TurnTimeout)
	}
	return err
}

// streamTurn opens one stream and consumes it to the end: tokens accumulate
// into the assistant text, reconstructed tool calls collect in request order.
func (s *Session) streamTurn(ctx context.Context) (string, []llmstream.ToolCall, *llmstream.Usage, error) {
	req := llmstream.Request{
		System:   s.config.SystemPrompt,
		Messages: s.history.wireMessages(),
		Tools:    s.toolDefinitions(),
	}
	events, err := s.streamer.Stream(ctx, req)
	if err != nil {
		return "", nil, nil, err
	}

	var sb strings.Builder
	var calls []llmstream.ToolCall
	var usage *llmstream.Usage
	for ev := range events {
		switch ev.Kind {
		case llmstream.EventToken:
			sb.WriteString(ev.Text)
			s.emitter.Emit(EventAssistantTextDelta, map[string]interface{}{"text": ev.Text})
		case llmstream.EventToolCall:
			if ev.ToolCall != nil {
				calls = append(calls, *ev.ToolCall)
			}
		case llmstream.EventError:
			return "", nil, nil, ev.Err
		case llmstream.EventDone:
			usage = ev.Usage
		}
	}
	return sb.String(), calls, usage, nil
}

func (s *Session) toolDefinitions() []llmstream.ToolDefinition {
	defs := s.registry.Definitions()
	out := make([]llmstream.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llmstream.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}
	}
	return out
}

// dispatchToolRound executes a batch of calls, concurrently when there is
// more than one. Results land at the index of their originating call, so the
// history order matches the request order no matter which finishes first.
func (s *Session) dispatchToolRound(ctx context.Context, calls []llmstream.ToolCall) []toolbox.Result {
	results := make([]toolbox.Result, len(calls))
	if len(calls) == 1 {
		results[0] = s.runToolCall(ctx, calls[0])
		return results
	}
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call llmstream.ToolCall) {
			defer wg.Done()
			results[idx] = s.runToolCall(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// runToolCall resolves one call end to end: gate, cache lookup for read-only
// tools, dispatch, cache fill.
func (s *Session) runToolCall(ctx context.Context, call llmstream.ToolCall) toolbox.Result {
	s.emitter.Emit(EventToolCallStart, map[string]interface{}{
		"tool_name": call.Name,
		"call_id":   call.ID,
	})
	result := s.resolveToolCall(ctx, call)

	data := map[string]interface{}{"tool_name": call.Name, "call_id": call.ID, "success": result.Success}
	if result.Success {
		// Observers get the full output; truncation applies only to what
		// enters the history.
		data["output"] = result.Text()
	} else if result.Error != nil {
		data["error_code"] = result.Error.Code
		data["error"] = result.Error.Message
	}
	s.emitter.Emit(EventToolCallEnd, data)
	return result
}

func (s *Session) resolveToolCall(ctx context.Context, call llmstream.ToolCall) toolbox.Result {
	def, known := s.registry.Get(call.Name)
	if !known {
		return s.registry.Execute(ctx, call.Name, call.Input)
	}

	decision, err := s.gate.Authorize(ctx, def, call.Input)
	if err != nil {
		return toolbox.Fail(toolbox.CodeAborted, fmt.Sprintf("tool %s aborted: %v", call.Name, err))
	}
	s.emitter.Emit(EventPermissionDecision, map[string]interface{}{
		"tool_name":   call.Name,
		"outcome":     string(decision.Outcome),
		"resolved_by": decision.ResolvedBy,
	})
	if decision.Outcome != toolbox.OutcomeAllow {
		return toolbox.Fail(toolbox.CodePermissionDenied,
			fmt.Sprintf("permission denied for tool %s in %s mode", call.Name, s.gate.Mode()))
	}

	s.mu.Lock()
	cache := s.cache
	s.mu.Unlock()
	// Cache tools read and mutate the same store a memo would shadow, so
	// they always execute.
	memoize := s.config.CacheToolResults && cache != nil &&
		def.Permission == toolbox.PermissionNone && def.Category != "cache"

	var key string
	if memoize {
		key = tieredcache.DeriveKey(call.Name, normalizeInput(call.Input))
		if entry, hit, err := cache.Retrieve(tieredcache.TierReasoning, key); err == nil && hit {
			return toolbox.Ok(entry.Value)
		}
	}

	result := s.registry.Execute(ctx, call.Name, call.Input)
	if memoize && result.Success {
		_, _ = cache.Store(tieredcache.TierReasoning, key, result.Text(),
			map[string]string{"tool": call.Name})
	}
	return result
}

// normalizeInput compacts the raw JSON so formatting differences do not split
// the cache key space.
func normalizeInput(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// drainSteering injects queued steering messages as user messages.
func (s *Session) drainSteering() {
	s.mu.Lock()
	pending := s.steeringQueue
	s.steeringQueue = nil
	s.mu.Unlock()

	for _, msg := range pending {
		s.history.Append(NewUserMessage(msg))
		s.emitter.Emit(EventSteeringInjected, map[string]interface{}{"content": msg})
	}
}

func (s *Session) nextFollowup() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.followupQueue) == 0 {
		return "", false
	}
	next := s.followupQueue[0]
	s.followupQueue = s.followupQueue[1:]
	return next, true
}

// checkForLoop warns the model, in-band, when its recent tool calls repeat.
func (s *Session) checkForLoop() {
	if !s.config.EnableLoopDetection {
		return
	}
	window := s.config.LoopDetectionWindow
	if window <= 0 {
		window = 10
	}
	if !DetectLoop(s.history.Messages(), window) {
		return
	}
	warning := fmt.Sprintf("The last %d tool calls follow a repeating pattern. Step back and try a different approach.", window)
	s.history.Append(NewUserMessage(warning))
	s.emitter.Emit(EventLoopDetection, map[string]interface{}{"message": warning})
}
