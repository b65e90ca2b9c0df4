package llmstream

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one element of the conversation sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls echoes the calls an assistant message requested. The wire
	// format requires them to be replayed alongside the assistant text when
	// tool results follow.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID marks a tool-role message as the result of a specific call.
	ToolCallID string `json:"tool_call_id,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message with the tool calls it issued.
func AssistantMessage(text string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: toolCalls}
}

// ToolResultMessage creates a tool-role Message carrying one call's result.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, IsError: isError}
}

// ToolDefinition is the serializable description of a tool offered to the
// model. InputSchema is a JSON Schema document.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCall is a fully reconstructed tool invocation request from the model.
// Input is always valid JSON; an argumentless call yields "{}".
type ToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	RawInput string          `json:"raw_input,omitempty"`
}

// Usage tracks token consumption reported by the endpoint.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// EventKind discriminates stream events.
type EventKind string

const (
	EventToken    EventKind = "token"
	EventToolCall EventKind = "tool_call"
	EventError    EventKind = "error"
	EventDone     EventKind = "done"
)

// Event is a single element of the reconstructed stream. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Event struct {
	Kind       EventKind
	Text       string    // EventToken
	ToolCall   *ToolCall // EventToolCall
	Err        error     // EventError
	StopReason string    // EventDone
	Usage      *Usage    // EventDone, when the endpoint reported usage
}

// Request is the input to Client.Stream.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
}

// CollectText drains a stream into its concatenated token text. Intended for
// tests and simple non-tool callers; returns the first error event seen.
func CollectText(events <-chan Event) (string, error) {
	var sb strings.Builder
	for ev := range events {
		switch ev.Kind {
		case EventToken:
			sb.WriteString(ev.Text)
		case EventError:
			return sb.String(), ev.Err
		}
	}
	return sb.String(), nil
}
