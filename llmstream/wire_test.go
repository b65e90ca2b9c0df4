package llmstream

import (
	"encoding/json"
	"testing"
)

func TestBuildWireMessagesCoalescesToolResults(t *testing.T) {
	calls := []ToolCall{
		{ID: "a", Name: "read_file", Input: json.RawMessage(`{"path":"x"}`)},
		{ID: "b", Name: "glob", Input: json.RawMessage(`{"pattern":"*"}`)},
	}
	messages := []Message{
		UserMessage("go"),
		AssistantMessage("working", calls),
		ToolResultMessage("a", "contents", false),
		ToolResultMessage("b", "no matches", true),
	}

	wire := buildWireMessages(messages)
	if len(wire) != 3 {
		t.Fatalf("got %d wire messages, want 3 (results coalesced): %+v", len(wire), wire)
	}

	assistant := wire[1]
	if assistant.Role != "assistant" || len(assistant.Content) != 3 {
		t.Fatalf("assistant message: %+v", assistant)
	}
	if assistant.Content[0].Type != "text" || assistant.Content[1].Type != "tool_use" {
		t.Errorf("assistant blocks: %+v", assistant.Content)
	}

	results := wire[2]
	if results.Role != "user" || len(results.Content) != 2 {
		t.Fatalf("results message: %+v", results)
	}
	if results.Content[0].ToolUseID != "a" || results.Content[1].ToolUseID != "b" {
		t.Errorf("result ids: %+v", results.Content)
	}
	if !results.Content[1].IsError {
		t.Error("second result should carry is_error")
	}
}

func TestBuildWireMessagesSkipsSystem(t *testing.T) {
	wire := buildWireMessages([]Message{
		SystemMessage("be brief"),
		UserMessage("hi"),
	})
	if len(wire) != 1 || wire[0].Role != "user" {
		t.Fatalf("wire: %+v", wire)
	}
}

func TestCollectSystemJoins(t *testing.T) {
	got := collectSystem("base", []Message{SystemMessage("extra"), UserMessage("hi")})
	if got != "base\n\nextra" {
		t.Errorf("got %q", got)
	}
	if collectSystem("", nil) != "" {
		t.Error("empty system should stay empty")
	}
}

func TestAssistantToolOnlyMessageOmitsEmptyText(t *testing.T) {
	wire := buildWireMessages([]Message{
		AssistantMessage("", []ToolCall{{ID: "a", Name: "shell"}}),
	})
	if len(wire) != 1 {
		t.Fatalf("wire: %+v", wire)
	}
	blocks := wire[0].Content
	if len(blocks) != 1 || blocks[0].Type != "tool_use" {
		t.Fatalf("blocks: %+v", blocks)
	}
	if string(blocks[0].Input) != "{}" {
		t.Errorf("empty input should default to {}: %s", blocks[0].Input)
	}
}
