package llmstream

import "encoding/json"

// Wire types for the Anthropic-compatible Messages endpoint.

type wireRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type wireTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

// wireBlock is the union of text, tool_use, and tool_result content blocks.
type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// streamEnvelope covers every SSE payload shape the endpoint emits. Type is
// the discriminator; the other fields are populated per event type.
type streamEnvelope struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta,omitempty"`

	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// buildWireMessages converts conversation messages to wire form. System
// messages are collected by the caller into the request's system field, so
// they are skipped here. Consecutive tool-result messages are coalesced into
// a single user message, as the wire requires every result for an assistant
// turn to arrive in the immediately following user message.
func buildWireMessages(messages []Message) []wireMessage {
	var out []wireMessage
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			continue
		case RoleTool:
			block := wireBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
				IsError:   m.IsError,
			}
			if n := len(out); n > 0 && out[n-1].Role == "user" && len(out[n-1].Content) > 0 && out[n-1].Content[0].Type == "tool_result" {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, wireMessage{Role: "user", Content: []wireBlock{block}})
		case RoleAssistant:
			blocks := make([]wireBlock, 0, 1+len(m.ToolCalls))
			if m.Content != "" || len(m.ToolCalls) == 0 {
				blocks = append(blocks, wireBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Input
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, wireBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			out = append(out, wireMessage{Role: "assistant", Content: blocks})
		default:
			out = append(out, wireMessage{
				Role:    string(m.Role),
				Content: []wireBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	return out
}

// collectSystem joins system-role messages with the request's explicit system
// prompt.
func collectSystem(explicit string, messages []Message) string {
	parts := make([]string, 0, 2)
	if explicit != "" {
		parts = append(parts, explicit)
	}
	for _, m := range messages {
		if m.Role == RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	joined := parts[0]
	for _, p := range parts[1:] {
		joined += "\n\n" + p
	}
	return joined
}
