// Package agentloop runs the autonomous coding loop: stream a model
// response, execute the tools it asked for, feed the results back, and
// repeat until the model answers in plain text or a bound trips.
//
// The package is organized around these concepts:
//
//   - Session: the orchestrator holding conversation state, dispatching
//     tool calls through the permission gate, and enforcing the turn and
//     per-turn time bounds.
//   - Streamer: the LLM boundary, satisfied by llmstream.Client.
//   - ExecutionEnvironment: where the built-in tools act (local machine
//     by default).
//   - EventEmitter: typed event stream for host application integration.
//
// # Quick Start
//
//	cfg, _ := llmstream.ConfigFromEnv()
//	client := llmstream.NewClient(cfg)
//
//	reg := toolbox.NewRegistry()
//	env := agentloop.NewLocalEnvironment("/path/to/project")
//	agentloop.RegisterCoreTools(reg, env)
//
//	gate := toolbox.NewGate(toolbox.ModeYolo, nil)
//	session := agentloop.NewSession(client, reg, gate, nil)
//	defer session.Close()
//
//	answer, err := session.Execute(ctx, "Create a hello.py file")
package agentloop
