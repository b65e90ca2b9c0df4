package agentloop

import (
	"encoding/json"
	"time"

	"github.com/martinemde/agentd/llmstream"
)

// Message is one element of a session's conversation history.
type Message struct {
	Role      llmstream.Role `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`

	// Assistant messages carry the tool calls they requested.
	ToolCalls []llmstream.ToolCall `json:"tool_calls,omitempty"`

	// Tool messages carry the id, name, and input of the originating call.
	// They are produced only by the loop, never user-authored.
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// NewUserMessage creates a user Message stamped now.
func NewUserMessage(content string) Message {
	return Message{Role: llmstream.RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant Message with its tool calls.
func NewAssistantMessage(content string, toolCalls []llmstream.ToolCall) Message {
	return Message{
		Role:      llmstream.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		ToolCalls: toolCalls,
	}
}

// NewToolMessage creates a tool-role Message for one call's result.
func NewToolMessage(call llmstream.ToolCall, content string, isError bool) Message {
	return Message{
		Role:       llmstream.RoleTool,
		Content:    content,
		Timestamp:  time.Now(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		ToolInput:  call.Input,
		IsError:    isError,
	}
}

// History is the ordered, append-only conversation record plus the turn
// counter. It is owned by exactly one Session and written from a single
// goroutine; the loop is the only place the turn counter moves.
type History struct {
	messages  []Message
	turnCount int
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{}
}

// Append adds a message.
func (h *History) Append(msg Message) {
	h.messages = append(h.messages, msg)
}

// Messages returns a copy of the history.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int { return len(h.messages) }

// TurnCount returns how many LLM calls the loop has made.
func (h *History) TurnCount() int { return h.turnCount }

func (h *History) bumpTurn() { h.turnCount++ }

// wireMessages converts the history into the stream client's message form.
func (h *History) wireMessages() []llmstream.Message {
	out := make([]llmstream.Message, 0, len(h.messages))
	for _, m := range h.messages {
		switch m.Role {
		case llmstream.RoleAssistant:
			out = append(out, llmstream.AssistantMessage(m.Content, m.ToolCalls))
		case llmstream.RoleTool:
			out = append(out, llmstream.ToolResultMessage(m.ToolCallID, m.Content, m.IsError))
		default:
			out = append(out, llmstream.Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}
