package agentloop

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martinemde/agentd/tieredcache"
	"github.com/martinemde/agentd/toolbox"
)

func coreRegistry(t *testing.T) (*toolbox.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := toolbox.NewRegistry()
	if err := RegisterCoreTools(reg, NewLocalEnvironment(dir)); err != nil {
		t.Fatalf("RegisterCoreTools: %v", err)
	}
	return reg, dir
}

func mustWrite(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCoreToolPermissionClasses(t *testing.T) {
	reg, _ := coreRegistry(t)
	want := map[string]toolbox.PermissionClass{
		"read_file":  toolbox.PermissionNone,
		"list_dir":   toolbox.PermissionNone,
		"grep":       toolbox.PermissionNone,
		"glob":       toolbox.PermissionNone,
		"write_file": toolbox.PermissionModerate,
		"edit_file":  toolbox.PermissionModerate,
		"shell":      toolbox.PermissionDangerous,
	}
	for name, class := range want {
		def, ok := reg.Get(name)
		if !ok {
			t.Errorf("tool %s not registered", name)
			continue
		}
		if def.Permission != class {
			t.Errorf("%s: permission %s, want %s", name, def.Permission, class)
		}
	}
}

func TestReadFileTool(t *testing.T) {
	reg, dir := coreRegistry(t)
	mustWrite(t, dir, "hello.txt", "first\nsecond\nthird")

	result := reg.Execute(context.Background(), "read_file", json.RawMessage(`{"path":"hello.txt"}`))
	if !result.Success {
		t.Fatalf("read_file failed: %+v", result.Error)
	}
	text := result.Text()
	if !strings.Contains(text, "1 | first") || !strings.Contains(text, "3 | third") {
		t.Errorf("output: %q", text)
	}

	// Missing required field fails schema validation, not the executor.
	result = reg.Execute(context.Background(), "read_file", json.RawMessage(`{}`))
	if result.Success || result.Error.Code != toolbox.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %+v", result)
	}
}

func TestWriteAndEditFileTools(t *testing.T) {
	reg, dir := coreRegistry(t)

	result := reg.Execute(context.Background(), "write_file",
		json.RawMessage(`{"path":"src/app.go","content":"package app\n\nvar x = 1\n"}`))
	if !result.Success {
		t.Fatalf("write_file: %+v", result.Error)
	}

	result = reg.Execute(context.Background(), "edit_file",
		json.RawMessage(`{"path":"src/app.go","old_string":"var x = 1","new_string":"var x = 2"}`))
	if !result.Success {
		t.Fatalf("edit_file: %+v", result.Error)
	}

	data, err := os.ReadFile(filepath.Join(dir, "src", "app.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "var x = 2") {
		t.Errorf("file content: %q", data)
	}

	// An absent old_string is an executor failure.
	result = reg.Execute(context.Background(), "edit_file",
		json.RawMessage(`{"path":"src/app.go","old_string":"nowhere","new_string":"y"}`))
	if result.Success || result.Error.Code != toolbox.CodeExecutionFailed {
		t.Errorf("expected EXECUTION_FAILED, got %+v", result)
	}
}

func TestGlobAndListDirTools(t *testing.T) {
	reg, dir := coreRegistry(t)
	mustWrite(t, dir, "a.go", "package a")
	mustWrite(t, dir, "b.txt", "text")

	result := reg.Execute(context.Background(), "glob", json.RawMessage(`{"pattern":"*.go"}`))
	if !result.Success {
		t.Fatalf("glob: %+v", result.Error)
	}
	if got := result.Text(); got != "a.go" {
		t.Errorf("glob output: %q", got)
	}

	result = reg.Execute(context.Background(), "list_dir", json.RawMessage(`{}`))
	if !result.Success {
		t.Fatalf("list_dir: %+v", result.Error)
	}
	if !strings.Contains(result.Text(), "b.txt") {
		t.Errorf("list_dir output: %q", result.Text())
	}
}

func TestShellTool(t *testing.T) {
	reg, _ := coreRegistry(t)

	result := reg.Execute(context.Background(), "shell", json.RawMessage(`{"command":"echo hello"}`))
	if !result.Success {
		t.Fatalf("shell: %+v", result.Error)
	}
	if strings.TrimSpace(result.Text()) != "hello" {
		t.Errorf("output: %q", result.Text())
	}

	result = reg.Execute(context.Background(), "shell", json.RawMessage(`{"command":"exit 3"}`))
	if result.Success {
		t.Fatal("nonzero exit should fail")
	}
	if !strings.Contains(result.Error.Message, "exit code 3") {
		t.Errorf("error: %+v", result.Error)
	}
}

func TestCacheTools(t *testing.T) {
	cache, err := tieredcache.New("")
	if err != nil {
		t.Fatal(err)
	}
	reg := toolbox.NewRegistry()
	if err := RegisterCacheTools(reg, cache); err != nil {
		t.Fatalf("RegisterCacheTools: %v", err)
	}

	result := reg.Execute(context.Background(), "cache_store",
		json.RawMessage(`{"tier":"project","key":"notes","value":"prefer table tests"}`))
	if !result.Success {
		t.Fatalf("cache_store: %+v", result.Error)
	}

	result = reg.Execute(context.Background(), "cache_retrieve",
		json.RawMessage(`{"tier":"project","key":"notes"}`))
	if !result.Success {
		t.Fatalf("cache_retrieve: %+v", result.Error)
	}
	var got map[string]interface{}
	if err := json.Unmarshal([]byte(result.Text()), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["found"] != true || got["value"] != "prefer table tests" {
		t.Errorf("retrieve payload: %v", got)
	}

	// Schema rejects unknown tiers before the cache sees them.
	result = reg.Execute(context.Background(), "cache_store",
		json.RawMessage(`{"tier":"attic","key":"k","value":"v"}`))
	if result.Success || result.Error.Code != toolbox.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %+v", result)
	}

	result = reg.Execute(context.Background(), "cache_list", json.RawMessage(`{"tier":"project"}`))
	if !result.Success || !strings.Contains(result.Text(), "notes") {
		t.Errorf("cache_list: %+v", result)
	}
}

func TestStripLineNumbers(t *testing.T) {
	numbered := "1 | package app\n2 | \n3 | var x = 1\n"
	got := stripLineNumbers(numbered)
	if got != "package app\n\nvar x = 1" {
		t.Errorf("got %q", got)
	}
}
