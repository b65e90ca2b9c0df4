// Package llmstream is a wire-level streaming client for an
// Anthropic-compatible Messages endpoint.
//
// A call to Client.Stream opens a single chunked HTTP request and returns a
// lazy, finite, non-restartable channel of Events: text deltas surface
// immediately as EventToken, while tool-call argument fragments are buffered
// per block index and emitted as one EventToolCall only after the block's
// stop marker (or end-of-stream) confirms the argument JSON is complete.
// Parsing never races accumulation, so a call's input is either whole or a
// ProtocolError, never a partial-JSON guess.
//
// Transient connection failures (429, 5xx, network, timeout) are retried with
// capped exponential backoff before any event is emitted; 401/403 surface
// immediately as a fatal EventError. An optional circuit breaker fast-fails
// calls after repeated cross-call failures.
//
//	cfg, _ := llmstream.ConfigFromEnv()
//	client := llmstream.NewClient(cfg)
//	events, err := client.Stream(ctx, llmstream.Request{
//	    Messages: []llmstream.Message{llmstream.UserMessage("hello")},
//	    Tools:    catalogue,
//	})
package llmstream
