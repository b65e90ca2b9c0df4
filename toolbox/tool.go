// Package toolbox provides tool registration, schema-validated dispatch, and
// the permission gate that decides which calls may run.
package toolbox

import (
	"context"
	"encoding/json"
)

// PermissionClass is a tool's declared risk level.
type PermissionClass string

const (
	PermissionNone      PermissionClass = "none"
	PermissionModerate  PermissionClass = "moderate"
	PermissionDangerous PermissionClass = "dangerous"
)

// ExecuteFunc is a tool body. It may block; it must honor ctx. Returned
// errors and panics are normalized by the registry and never escape dispatch.
type ExecuteFunc func(ctx context.Context, input json.RawMessage) (interface{}, error)

// Definition describes one tool. Registered once at startup and immutable
// afterward.
type Definition struct {
	Name        string
	Description string
	Category    string
	// InputSchema is a JSON Schema document validated against every call's
	// raw input before Execute runs.
	InputSchema map[string]interface{}
	Permission  PermissionClass
	Execute     ExecuteFunc
}

// Result error codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeAborted          = "ABORTED"
)

// ResultError is the structured failure payload of a Result.
type ResultError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Result is the normalized outcome of one tool dispatch. Data is present iff
// Success; Error is present iff not.
type Result struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

// Ok wraps a successful payload.
func Ok(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// Fail builds a failure Result.
func Fail(code, message string) Result {
	return Result{Success: false, Error: &ResultError{Code: code, Message: message}}
}

// FailWithDetails builds a failure Result carrying diagnostics.
func FailWithDetails(code, message string, details map[string]interface{}) Result {
	return Result{Success: false, Error: &ResultError{Code: code, Message: message, Details: details}}
}

// Text renders the result for inclusion in conversation history: successful
// string payloads pass through, anything else is JSON-encoded.
func (r Result) Text() string {
	if r.Success {
		if s, ok := r.Data.(string); ok {
			return s
		}
		raw, err := json.Marshal(r.Data)
		if err != nil {
			return ""
		}
		return string(raw)
	}
	if r.Error == nil {
		return "tool failed"
	}
	return r.Error.Code + ": " + r.Error.Message
}
