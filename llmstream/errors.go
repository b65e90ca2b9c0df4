package llmstream

import "fmt"

// StreamError is the base error type for all client errors.
type StreamError struct {
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// AuthError is a 401/403 from the endpoint. Never retried.
type AuthError struct {
	StreamError
	StatusCode int
}

// RateLimitError is a 429 from the endpoint.
type RateLimitError struct {
	StreamError
	StatusCode int
	// RetryAfter is the server-suggested delay in seconds, when present.
	RetryAfter *float64
}

// ServerError is a 5xx from the endpoint.
type ServerError struct {
	StreamError
	StatusCode int
}

// NetworkError is a transport-level failure before or during the response.
type NetworkError struct {
	StreamError
}

// TimeoutError is a request or context deadline expiry.
type TimeoutError struct {
	StreamError
}

// ProtocolError is a malformed or out-of-order wire event. Not retried: the
// stream it came from is unusable and a retry would replay the whole turn.
type ProtocolError struct {
	StreamError
}

// BreakerOpenError is returned when the circuit breaker fast-fails a call
// without touching the network.
type BreakerOpenError struct {
	StreamError
}

// ErrorFromStatus maps a non-200 HTTP status to the client error taxonomy.
func ErrorFromStatus(status int, body string) error {
	msg := fmt.Sprintf("endpoint returned status %d: %s", status, body)
	switch {
	case status == 401 || status == 403:
		return &AuthError{StreamError: StreamError{Message: msg}, StatusCode: status}
	case status == 429:
		return &RateLimitError{StreamError: StreamError{Message: msg}, StatusCode: status}
	case status >= 500:
		return &ServerError{StreamError: StreamError{Message: msg}, StatusCode: status}
	default:
		// 4xx other than auth/rate-limit indicates a bad request; treat as
		// non-retryable protocol failure.
		return &ProtocolError{StreamError: StreamError{Message: msg}}
	}
}

// isClientError reports whether err already belongs to the taxonomy above.
func isClientError(err error) bool {
	switch err.(type) {
	case *AuthError, *RateLimitError, *ServerError, *NetworkError,
		*TimeoutError, *ProtocolError, *BreakerOpenError:
		return true
	}
	return false
}

// IsRetryable reports whether the error is safe to retry. Auth and protocol
// failures are fatal; rate limits, server errors, network failures, and
// timeouts are transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch err.(type) {
	case *AuthError:
		return false
	case *ProtocolError:
		return false
	case *BreakerOpenError:
		return false
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *NetworkError:
		return true
	case *TimeoutError:
		return true
	default:
		return false
	}
}
