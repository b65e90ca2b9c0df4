package llmstream

import (
	"testing"
)

func TestAssemblerFragmentedArguments(t *testing.T) {
	asm := newToolCallAssembler()
	if err := asm.start(1, "call_1", "read_file"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Arguments arrive split across three deltas, none valid JSON alone.
	fragments := []string{`{"path": "ma`, `in.go", "off`, `set": 10}`}
	for _, f := range fragments {
		if err := asm.appendArgs(1, f); err != nil {
			t.Fatalf("appendArgs(%q): %v", f, err)
		}
	}

	call, err := asm.finish(1)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if call.ID != "call_1" || call.Name != "read_file" {
		t.Errorf("got call %s/%s, want call_1/read_file", call.ID, call.Name)
	}
	if string(call.Input) != `{"path": "main.go", "offset": 10}` {
		t.Errorf("unexpected input: %s", call.Input)
	}
	if asm.isOpen(1) {
		t.Error("block 1 still open after finish")
	}
}

func TestAssemblerEmptyArgumentsYieldEmptyObject(t *testing.T) {
	asm := newToolCallAssembler()
	if err := asm.start(0, "call_0", "list_dir"); err != nil {
		t.Fatalf("start: %v", err)
	}
	call, err := asm.finish(0)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if string(call.Input) != "{}" {
		t.Errorf("got input %s, want {}", call.Input)
	}
}

func TestAssemblerUnknownIndexIsProtocolError(t *testing.T) {
	asm := newToolCallAssembler()
	err := asm.appendArgs(7, `{"x":1}`)
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("got %T, want *ProtocolError", err)
	}
	if _, err := asm.finish(7); err == nil {
		t.Fatal("finish of unknown index should fail")
	}
}

func TestAssemblerDuplicateStartIsProtocolError(t *testing.T) {
	asm := newToolCallAssembler()
	if err := asm.start(2, "a", "grep"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	err := asm.start(2, "b", "glob")
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("got %T, want *ProtocolError", err)
	}
}

func TestAssemblerInvalidJSONIsProtocolError(t *testing.T) {
	asm := newToolCallAssembler()
	if err := asm.start(0, "call_0", "shell"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := asm.appendArgs(0, `{"command": "ls"`); err != nil {
		t.Fatalf("appendArgs: %v", err)
	}
	_, err := asm.finish(0)
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("got %T, want *ProtocolError", err)
	}
}

func TestAssemblerDrainReturnsCallsInIndexOrder(t *testing.T) {
	asm := newToolCallAssembler()
	for _, idx := range []int{3, 1, 2} {
		if err := asm.start(idx, "call", "tool"); err != nil {
			t.Fatalf("start(%d): %v", idx, err)
		}
	}

	calls, err := asm.drain()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(calls))
	}
	// Second drain is a no-op.
	calls, err = asm.drain()
	if err != nil || calls != nil {
		t.Errorf("second drain: got %v, %v", calls, err)
	}
}
