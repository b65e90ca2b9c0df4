package llmstream

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantType  string
		retryable bool
	}{
		{401, "*llmstream.AuthError", false},
		{403, "*llmstream.AuthError", false},
		{429, "*llmstream.RateLimitError", true},
		{500, "*llmstream.ServerError", true},
		{503, "*llmstream.ServerError", true},
		{400, "*llmstream.ProtocolError", false},
		{404, "*llmstream.ProtocolError", false},
	}
	for _, tt := range tests {
		err := ErrorFromStatus(tt.status, "body")
		if got := fmt.Sprintf("%T", err); got != tt.wantType {
			t.Errorf("status %d: got %s, want %s", tt.status, got, tt.wantType)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: IsRetryable = %v, want %v", tt.status, IsRetryable(err), tt.retryable)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("unclassified errors should not be retryable")
	}
	if !IsRetryable(&NetworkError{}) || !IsRetryable(&TimeoutError{}) {
		t.Error("network and timeout errors should be retryable")
	}
	if IsRetryable(&BreakerOpenError{}) {
		t.Error("breaker-open should not be retryable")
	}
}

func TestStreamErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NetworkError{StreamError: StreamError{Message: "execute request", Cause: cause}}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "execute request: connection refused" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
