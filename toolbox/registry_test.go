package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Definition {
	return Definition{
		Name:        name,
		Description: "echoes its input",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
			},
			"required": []string{"text"},
		},
		Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
			var args struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, err
			}
			return args.Text, nil
		},
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(Definition{Execute: func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil }})
	assert.ErrorContains(t, err, "name is required")

	err = reg.Register(Definition{Name: "no_exec"})
	assert.ErrorContains(t, err, "executor is required")

	require.NoError(t, reg.Register(echoTool("echo")))
	err = reg.Register(echoTool("echo"))
	assert.ErrorContains(t, err, "already registered")
	assert.Equal(t, 1, reg.Count())
}

func TestRegisterDefaultsPermissionToNone(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))

	def, ok := reg.Get("echo")
	require.True(t, ok)
	assert.Equal(t, PermissionNone, def.Permission)
}

func TestDefinitionsSortedByName(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(echoTool(name)))
	}
	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "mid", defs[1].Name)
	assert.Equal(t, "zeta", defs[2].Name)
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	result := reg.Execute(context.Background(), "nope", nil)

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeNotFound, result.Error.Code)
}

func TestExecuteInvalidInput(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))

	// Missing required field.
	result := reg.Execute(context.Background(), "echo", json.RawMessage(`{}`))
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeInvalidInput, result.Error.Code)
	assert.Contains(t, result.Error.Details, "validation")

	// Not JSON at all.
	result = reg.Execute(context.Background(), "echo", json.RawMessage(`not json`))
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeInvalidInput, result.Error.Code)
	assert.Contains(t, result.Error.Details, "parse_error")
}

func TestExecuteSuccess(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))

	result := reg.Execute(context.Background(), "echo", json.RawMessage(`{"text":"hello"}`))
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Data)
	assert.Equal(t, "hello", result.Text())
}

func TestExecutePanicRecovered(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Definition{
		Name: "boom",
		Execute: func(context.Context, json.RawMessage) (interface{}, error) {
			panic("kaboom")
		},
	}))

	var result Result
	assert.NotPanics(t, func() {
		result = reg.Execute(context.Background(), "boom", json.RawMessage(`{}`))
	})
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeExecutionFailed, result.Error.Code)
	assert.Contains(t, result.Error.Message, "panicked")
	assert.Equal(t, "kaboom", result.Error.Details["message"])
}

func TestExecuteToolError(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Definition{
		Name: "fails",
		Execute: func(context.Context, json.RawMessage) (interface{}, error) {
			return nil, errors.New("disk on fire")
		},
	}))

	result := reg.Execute(context.Background(), "fails", json.RawMessage(`{}`))
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeExecutionFailed, result.Error.Code)
	assert.Contains(t, result.Error.Message, "disk on fire")
}

func TestExecuteCancelledContext(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Definition{
		Name: "slow",
		Execute: func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := reg.Execute(ctx, "slow", json.RawMessage(`{}`))
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeAborted, result.Error.Code)
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "plain", Ok("plain").Text())
	assert.Equal(t, `{"n":1}`, Ok(map[string]int{"n": 1}).Text())
	assert.Equal(t, "NOT_FOUND: unknown tool: x", Fail(CodeNotFound, "unknown tool: x").Text())
}
