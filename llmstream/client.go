package llmstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds endpoint and tuning settings for the client. Retry constants
// are configuration, not invariants; they can be overridden per deployment.
type Config struct {
	BaseURL    string `env:"AGENTD_BASE_URL" envDefault:"https://api.anthropic.com"`
	APIKey     string `env:"AGENTD_API_KEY"`
	APIVersion string `env:"AGENTD_API_VERSION" envDefault:"2023-06-01"`
	Model      string `env:"AGENTD_MODEL" envDefault:"claude-sonnet-4-5"`
	MaxTokens  int    `env:"AGENTD_MAX_TOKENS" envDefault:"8192"`

	RequestTimeout time.Duration `env:"AGENTD_REQUEST_TIMEOUT" envDefault:"5m"`

	MaxRetries     int           `env:"AGENTD_MAX_RETRIES" envDefault:"2"`
	RetryBaseDelay time.Duration `env:"AGENTD_RETRY_BASE_DELAY" envDefault:"500ms"`
	RetryMaxDelay  time.Duration `env:"AGENTD_RETRY_MAX_DELAY" envDefault:"5s"`

	// BreakerThreshold of 0 disables the circuit breaker.
	BreakerThreshold int           `env:"AGENTD_BREAKER_THRESHOLD" envDefault:"0"`
	BreakerCooldown  time.Duration `env:"AGENTD_BREAKER_COOLDOWN" envDefault:"30s"`
}

// ConfigFromEnv loads Config from AGENTD_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load stream config: %w", err)
	}
	return cfg, nil
}

// Client opens chunked requests against an Anthropic-compatible Messages
// endpoint and reconstructs StreamEvents from the SSE response.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      RetryPolicy
	breaker    *CircuitBreaker
}

// NewClient creates a Client from cfg. The HTTP client has no overall timeout;
// streams are bounded by the caller's context and cfg.RequestTimeout.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		retry: RetryPolicy{
			MaxRetries:     cfg.MaxRetries,
			BaseDelay:      cfg.RetryBaseDelay,
			MaxDelay:       cfg.RetryMaxDelay,
			JitterFraction: 0.2,
		},
	}
	if c.retry.BaseDelay <= 0 {
		c.retry = DefaultRetryPolicy()
		c.retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.BreakerThreshold > 0 {
		c.breaker = NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)
	}
	return c
}

// SetHTTPClient overrides the transport, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

// Stream opens one chunked request and returns a lazy, finite, non-restartable
// sequence of events. Connection-level transient failures are retried with
// backoff before any event is emitted; once events flow, a failure ends the
// stream with an EventError (EventDone is not guaranteed after an error).
// Cancelling ctx aborts the request and closes the channel.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	body, err := c.buildBody(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, 64)
	go c.run(ctx, body, ch)
	return ch, nil
}

func (c *Client) buildBody(req Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	wr := wireRequest{
		Model:       model,
		System:      collectSystem(req.System, req.Messages),
		Messages:    buildWireMessages(req.Messages),
		Tools:       make([]wireTool, 0, len(req.Tools)),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool(t))
	}
	body, err := json.Marshal(wr)
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}
	return body, nil
}

// run drives the attempt loop and event production. It owns ch and always
// closes it.
func (c *Client) run(ctx context.Context, body []byte, ch chan<- Event) {
	defer close(ch)

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		if !c.breaker.Allow() {
			c.send(ctx, ch, Event{Kind: EventError, Err: &BreakerOpenError{StreamError: StreamError{
				Message: "circuit breaker open; skipping request",
			}}})
			return
		}

		resp, err := c.connect(ctx, body)
		if err != nil {
			c.breaker.RecordFailure()
			if IsRetryable(err) && attempt < c.retry.MaxRetries {
				if !sleep(ctx, c.retry.delayFor(err, attempt)) {
					c.send(ctx, ch, Event{Kind: EventError, Err: ctx.Err()})
					return
				}
				continue
			}
			c.send(ctx, ch, Event{Kind: EventError, Err: err})
			return
		}

		c.breaker.RecordSuccess()
		c.consume(ctx, resp.Body, ch)
		return
	}
}

// connect performs the HTTP exchange and classifies failures into the error
// taxonomy. A non-nil response has status 200 and an open body.
func (c *Client) connect(ctx context.Context, body []byte) (*http.Response, error) {
	url := c.cfg.BaseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{StreamError: StreamError{Message: "build request", Cause: err}}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", c.cfg.APIVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{StreamError: StreamError{Message: "request deadline exceeded", Cause: err}}
		}
		return nil, &NetworkError{StreamError: StreamError{Message: "execute request", Cause: err}}
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		err := ErrorFromStatus(resp.StatusCode, string(bytes.TrimSpace(payload)))
		if rl, ok := err.(*RateLimitError); ok {
			if after := parseRetryAfter(resp.Header.Get("Retry-After")); after != nil {
				rl.RetryAfter = after
			}
		}
		return nil, err
	}
	return resp, nil
}

// consume turns the SSE body into events. Text deltas pass through
// immediately; tool-call argument fragments are buffered by block index and
// only surfaced once the block closes (or the stream ends).
func (c *Client) consume(ctx context.Context, body io.ReadCloser, ch chan<- Event) {
	defer body.Close()

	asm := newToolCallAssembler()
	var stopReason string
	var usage *Usage
	doneSent := false

	err := consumeSSE(ctx, body, func(data string) error {
		if data == "[DONE]" {
			// Terminator without a message_stop: treated like end of
			// stream, so buffered tool calls still drain below.
			return io.EOF
		}
		var env streamEnvelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			// Unknown payloads are skipped; the envelope carries its own
			// discriminator and forward compatibility matters more here.
			return nil
		}
		switch env.Type {
		case "content_block_start":
			if env.ContentBlock != nil && env.ContentBlock.Type == "tool_use" {
				return asm.start(env.Index, env.ContentBlock.ID, env.ContentBlock.Name)
			}
		case "content_block_delta":
			if env.Delta == nil {
				return nil
			}
			switch env.Delta.Type {
			case "text_delta":
				if env.Delta.Text != "" && !c.send(ctx, ch, Event{Kind: EventToken, Text: env.Delta.Text}) {
					return ctx.Err()
				}
			case "input_json_delta":
				return asm.appendArgs(env.Index, env.Delta.PartialJSON)
			}
		case "content_block_stop":
			if !asm.isOpen(env.Index) {
				return nil // text block closing
			}
			call, err := asm.finish(env.Index)
			if err != nil {
				return err
			}
			if !c.send(ctx, ch, Event{Kind: EventToolCall, ToolCall: call}) {
				return ctx.Err()
			}
		case "message_delta":
			if env.Delta != nil && env.Delta.StopReason != "" {
				stopReason = env.Delta.StopReason
			}
			if env.Usage != nil {
				usage = &Usage{InputTokens: env.Usage.InputTokens, OutputTokens: env.Usage.OutputTokens}
			}
		case "message_stop":
			calls, err := asm.drain()
			if err != nil {
				return err
			}
			for _, call := range calls {
				if !c.send(ctx, ch, Event{Kind: EventToolCall, ToolCall: call}) {
					return ctx.Err()
				}
			}
			doneSent = c.send(ctx, ch, Event{Kind: EventDone, StopReason: stopReason, Usage: usage})
			return io.EOF
		case "error":
			msg := "stream error"
			if env.Error != nil {
				msg = env.Error.Message
			}
			return &ServerError{StreamError: StreamError{Message: msg}}
		}
		return nil
	})

	if err != nil && err != io.EOF {
		if ctx.Err() != nil {
			err = &TimeoutError{StreamError: StreamError{Message: "stream cancelled", Cause: ctx.Err()}}
		} else if !isClientError(err) {
			err = &NetworkError{StreamError: StreamError{Message: "read stream", Cause: err}}
		}
		c.send(ctx, ch, Event{Kind: EventError, Err: err})
		return
	}

	if !doneSent {
		// Transport closed (or sent [DONE]) without a message_stop:
		// end-of-stream confirms any buffered tool calls are complete.
		calls, derr := asm.drain()
		if derr != nil {
			c.send(ctx, ch, Event{Kind: EventError, Err: derr})
			return
		}
		for _, call := range calls {
			if !c.send(ctx, ch, Event{Kind: EventToolCall, ToolCall: call}) {
				return
			}
		}
		c.send(ctx, ch, Event{Kind: EventDone, StopReason: stopReason, Usage: usage})
	}
}

// send delivers an event unless the context is cancelled. Returns false when
// the caller has gone away.
func (c *Client) send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func parseRetryAfter(header string) *float64 {
	if header == "" {
		return nil
	}
	var secs float64
	if _, err := fmt.Sscanf(header, "%f", &secs); err != nil || secs < 0 {
		return nil
	}
	return &secs
}
