package agentloop

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/martinemde/agentd/llmstream"
)

func assistantWithCalls(calls ...llmstream.ToolCall) Message {
	return NewAssistantMessage("", calls)
}

func repeatedCall(name, input string) llmstream.ToolCall {
	return llmstream.ToolCall{ID: "x", Name: name, Input: json.RawMessage(input)}
}

func TestDetectLoopSingleCallPattern(t *testing.T) {
	var history []Message
	for i := 0; i < 10; i++ {
		history = append(history, assistantWithCalls(repeatedCall("grep", `{"pattern":"x"}`)))
	}
	if !DetectLoop(history, 10) {
		t.Error("identical calls should trigger detection")
	}
}

func TestDetectLoopAlternatingPattern(t *testing.T) {
	var history []Message
	for i := 0; i < 5; i++ {
		history = append(history,
			assistantWithCalls(repeatedCall("read_file", `{"path":"a"}`)),
			assistantWithCalls(repeatedCall("grep", `{"pattern":"b"}`)),
		)
	}
	if !DetectLoop(history, 10) {
		t.Error("alternating two-call pattern should trigger detection")
	}
}

func TestDetectLoopDistinctCallsDoNotTrigger(t *testing.T) {
	var history []Message
	for i := 0; i < 10; i++ {
		input := fmt.Sprintf(`{"path":"file%d"}`, i)
		history = append(history, assistantWithCalls(repeatedCall("read_file", input)))
	}
	if DetectLoop(history, 10) {
		t.Error("distinct inputs must not trigger detection")
	}
}

func TestDetectLoopNeedsFullWindow(t *testing.T) {
	history := []Message{
		assistantWithCalls(repeatedCall("grep", `{}`)),
		assistantWithCalls(repeatedCall("grep", `{}`)),
	}
	if DetectLoop(history, 10) {
		t.Error("fewer calls than the window must not trigger")
	}
}

func TestDetectLoopIgnoresNonAssistantMessages(t *testing.T) {
	var history []Message
	for i := 0; i < 10; i++ {
		history = append(history,
			NewUserMessage("keep going"),
			assistantWithCalls(repeatedCall("shell", `{"command":"ls"}`)),
		)
	}
	if !DetectLoop(history, 10) {
		t.Error("interleaved user messages must not hide the pattern")
	}
}
