package llmstream

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConsumeSSESplitsEvents(t *testing.T) {
	body := "data: one\n\n: keepalive comment\ndata: two\ndata: three\n\n"
	var got []string
	err := consumeSSE(context.Background(), strings.NewReader(body), func(data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil {
		t.Fatalf("consumeSSE: %v", err)
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "two\nthree" {
		t.Errorf("payloads: %q", got)
	}
}

func TestConsumeSSEFlushesTrailingEvent(t *testing.T) {
	// No trailing blank line before EOF.
	body := "data: last"
	var got []string
	err := consumeSSE(context.Background(), strings.NewReader(body), func(data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil || len(got) != 1 || got[0] != "last" {
		t.Errorf("got %q, err %v", got, err)
	}
}

func TestConsumeSSEStopsOnCallbackError(t *testing.T) {
	body := "data: a\n\ndata: b\n\n"
	sentinel := errors.New("stop")
	calls := 0
	err := consumeSSE(context.Background(), strings.NewReader(body), func(string) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("got %v", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times", calls)
	}
}
