package agentloop

import (
	"strings"
	"testing"
)

func TestTruncateOutputUnderLimitUnchanged(t *testing.T) {
	out := TruncateOutput("short", 100, TruncateHeadTail)
	if out != "short" {
		t.Errorf("got %q", out)
	}
}

func TestTruncateOutputHeadTailKeepsBothEnds(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := TruncateOutput(input, 100, TruncateHeadTail)

	if !strings.HasPrefix(out, strings.Repeat("a", 50)) {
		t.Error("head not preserved")
	}
	if !strings.HasSuffix(out, strings.Repeat("z", 50)) {
		t.Error("tail not preserved")
	}
	if !strings.Contains(out, "truncated") {
		t.Error("missing truncation marker")
	}
}

func TestTruncateOutputTailKeepsEnd(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 100)
	out := TruncateOutput(input, 100, TruncateTail)

	if !strings.HasSuffix(out, strings.Repeat("z", 100)) {
		t.Error("tail not preserved")
	}
	if strings.Contains(out[len(out)-100:], "a") {
		t.Error("head content survived tail truncation")
	}
}

func TestTruncateLines(t *testing.T) {
	input := strings.TrimSuffix(strings.Repeat("line\n", 100), "\n")
	out := TruncateLines(input, 10)

	if !strings.Contains(out, "90 lines omitted") {
		t.Errorf("missing omission marker: %q", out)
	}
	if got := strings.Count(out, "line"); got > 11 {
		t.Errorf("too many lines kept: %d", got)
	}
}

func TestTruncateToolOutputUsesPerToolLimits(t *testing.T) {
	big := strings.Repeat("x", 2000)

	// write_file has a 1000-char default limit.
	out := TruncateToolOutput(big, "write_file", nil, nil)
	if len(out) >= 2000 {
		t.Error("write_file output not truncated at its limit")
	}

	// Caller overrides win.
	out = TruncateToolOutput(big, "write_file", map[string]int{"write_file": 5000}, nil)
	if out != big {
		t.Error("override limit not honored")
	}

	// Unknown tools fall back to the default budget and pass small output.
	out = TruncateToolOutput("tiny", "mystery_tool", nil, nil)
	if out != "tiny" {
		t.Errorf("got %q", out)
	}
}
