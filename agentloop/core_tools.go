package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/martinemde/agentd/tieredcache"
	"github.com/martinemde/agentd/toolbox"
)

// Default and maximum wall-clock budget for shell commands.
const (
	defaultShellTimeout = 10 * time.Second
	maxShellTimeout     = 10 * time.Minute
)

// RegisterCoreTools registers the built-in tool set against an execution
// environment. Read-only tools carry the none permission class; mutating
// tools are moderate; shell is dangerous.
func RegisterCoreTools(reg *toolbox.Registry, env ExecutionEnvironment) error {
	defs := []toolbox.Definition{
		readFileTool(env),
		listDirTool(env),
		grepTool(env),
		globTool(env),
		writeFileTool(env),
		editFileTool(env),
		shellTool(env),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func readFileTool(env ExecutionEnvironment) toolbox.Definition {
	return toolbox.Definition{
		Name:        "read_file",
		Description: "Read a file from the filesystem. Returns line-numbered content.",
		Category:    "filesystem",
		Permission:  toolbox.PermissionNone,
		InputSchema: objectSchema(map[string]interface{}{
			"path":   stringProp("Path to the file to read."),
			"offset": intProp("1-based line number to start reading from."),
			"limit":  intProp("Maximum number of lines to read. Default: 2000."),
		}, "path"),
		Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
			var args struct {
				Path   string `json:"path"`
				Offset int    `json:"offset"`
				Limit  int    `json:"limit"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			if args.Limit == 0 {
				args.Limit = 2000
			}
			return env.ReadFile(args.Path, args.Offset, args.Limit)
		},
	}
}

func listDirTool(env ExecutionEnvironment) toolbox.Definition {
	return toolbox.Definition{
		Name:        "list_dir",
		Description: "List the entries of a directory.",
		Category:    "filesystem",
		Permission:  toolbox.PermissionNone,
		InputSchema: objectSchema(map[string]interface{}{
			"path": stringProp("Directory to list. Defaults to the working directory."),
		}),
		Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
			var args struct {
				Path string `json:"path"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				args.Path = "."
			}
			entries, err := env.ListDirectory(args.Path)
			if err != nil {
				return nil, err
			}
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(&sb, "%s/\n", e.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name, e.Size)
				}
			}
			return sb.String(), nil
		},
	}
}

func grepTool(env ExecutionEnvironment) toolbox.Definition {
	return toolbox.Definition{
		Name:        "grep",
		Description: "Search file contents for a regular expression.",
		Category:    "search",
		Permission:  toolbox.PermissionNone,
		InputSchema: objectSchema(map[string]interface{}{
			"pattern":          stringProp("Regular expression to search for."),
			"path":             stringProp("File or directory to search. Defaults to the working directory."),
			"glob":             stringProp("Glob filter applied to file names, e.g. *.go."),
			"case_insensitive": map[string]interface{}{"type": "boolean", "description": "Ignore case."},
			"max_results":      intProp("Cap on matches per file."),
		}, "pattern"),
		Execute: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args struct {
				Pattern         string `json:"pattern"`
				Path            string `json:"path"`
				Glob            string `json:"glob"`
				CaseInsensitive bool   `json:"case_insensitive"`
				MaxResults      int    `json:"max_results"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			return env.Grep(ctx, args.Pattern, args.Path, GrepOptions{
				GlobFilter:      args.Glob,
				CaseInsensitive: args.CaseInsensitive,
				MaxResults:      args.MaxResults,
			})
		},
	}
}

func globTool(env ExecutionEnvironment) toolbox.Definition {
	return toolbox.Definition{
		Name:        "glob",
		Description: "Find files matching a glob pattern.",
		Category:    "search",
		Permission:  toolbox.PermissionNone,
		InputSchema: objectSchema(map[string]interface{}{
			"pattern": stringProp("Glob pattern, e.g. **/*.go."),
			"path":    stringProp("Directory to match under. Defaults to the working directory."),
		}, "pattern"),
		Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
			var args struct {
				Pattern string `json:"pattern"`
				Path    string `json:"path"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			matches, err := env.Glob(args.Pattern, args.Path)
			if err != nil {
				return nil, err
			}
			return strings.Join(matches, "\n"), nil
		},
	}
}

func writeFileTool(env ExecutionEnvironment) toolbox.Definition {
	return toolbox.Definition{
		Name:        "write_file",
		Description: "Write content to a file, creating parent directories as needed.",
		Category:    "filesystem",
		Permission:  toolbox.PermissionModerate,
		InputSchema: objectSchema(map[string]interface{}{
			"path":    stringProp("Path to write to."),
			"content": stringProp("Full file content."),
		}, "path", "content"),
		Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
			var args struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			if err := env.WriteFile(args.Path, args.Content); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
		},
	}
}

func editFileTool(env ExecutionEnvironment) toolbox.Definition {
	return toolbox.Definition{
		Name:        "edit_file",
		Description: "Replace an exact string in a file. The old string must appear exactly once.",
		Category:    "filesystem",
		Permission:  toolbox.PermissionModerate,
		InputSchema: objectSchema(map[string]interface{}{
			"path":       stringProp("Path to the file to edit."),
			"old_string": stringProp("Exact text to replace."),
			"new_string": stringProp("Replacement text."),
		}, "path", "old_string", "new_string"),
		Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
			var args struct {
				Path      string `json:"path"`
				OldString string `json:"old_string"`
				NewString string `json:"new_string"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			if !env.FileExists(args.Path) {
				return nil, fmt.Errorf("file not found: %s", args.Path)
			}
			// The numbered view from ReadFile is for the model, not for
			// editing; strip the prefixes before matching.
			content, err := env.ReadFile(args.Path, 0, 0)
			if err != nil {
				return nil, err
			}
			plain := stripLineNumbers(content)
			switch strings.Count(plain, args.OldString) {
			case 0:
				return nil, fmt.Errorf("old_string not found in %s", args.Path)
			case 1:
			default:
				return nil, fmt.Errorf("old_string appears more than once in %s; provide more context", args.Path)
			}
			if err := env.WriteFile(args.Path, strings.Replace(plain, args.OldString, args.NewString, 1)); err != nil {
				return nil, err
			}
			return fmt.Sprintf("edited %s", args.Path), nil
		},
	}
}

// stripLineNumbers undoes the "N | " prefix ReadFile adds to each line.
func stripLineNumbers(numbered string) string {
	lines := strings.Split(numbered, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, rest, ok := strings.Cut(line, " | "); ok {
			out = append(out, rest)
		} else {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func shellTool(env ExecutionEnvironment) toolbox.Definition {
	return toolbox.Definition{
		Name:        "shell",
		Description: "Run a shell command in the working directory.",
		Category:    "execution",
		Permission:  toolbox.PermissionDangerous,
		InputSchema: objectSchema(map[string]interface{}{
			"command":    stringProp("Command to run."),
			"timeout_ms": intProp("Wall-clock budget in milliseconds. Default 10000, max 600000."),
		}, "command"),
		Execute: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			var args struct {
				Command   string `json:"command"`
				TimeoutMs int    `json:"timeout_ms"`
			}
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			timeout := defaultShellTimeout
			if args.TimeoutMs > 0 {
				timeout = time.Duration(args.TimeoutMs) * time.Millisecond
			}
			if timeout > maxShellTimeout {
				timeout = maxShellTimeout
			}
			result, err := env.ExecCommand(ctx, args.Command, timeout)
			if err != nil {
				return nil, err
			}
			if result.TimedOut {
				return nil, fmt.Errorf("command timed out after %s", timeout)
			}
			if result.ExitCode != 0 {
				return nil, fmt.Errorf("exit code %d: %s", result.ExitCode, result.Output())
			}
			return result.Output(), nil
		},
	}
}

// RegisterCacheTools exposes the tiered cache to the model. The cache tools
// never touch the execution environment, so they carry the none class.
func RegisterCacheTools(reg *toolbox.Registry, cache *tieredcache.Cache) error {
	tierProp := map[string]interface{}{
		"type":        "string",
		"enum":        []string{"reasoning", "project", "vault"},
		"description": "Cache tier.",
	}

	defs := []toolbox.Definition{
		{
			Name:        "cache_store",
			Description: "Store a value in the tiered cache. The tier fixes the TTL: reasoning 5m, project 24h, vault 7d.",
			Category:    "cache",
			Permission:  toolbox.PermissionNone,
			InputSchema: objectSchema(map[string]interface{}{
				"tier":  tierProp,
				"key":   stringProp("Entry key."),
				"value": stringProp("Value to store."),
			}, "tier", "key", "value"),
			Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Tier  string `json:"tier"`
					Key   string `json:"key"`
					Value string `json:"value"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				entry, err := cache.Store(tieredcache.Tier(args.Tier), args.Key, args.Value, nil)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("stored %s in %s (expires %s)", entry.Key, args.Tier,
					entry.ExpiresAt.Format(time.RFC3339)), nil
			},
		},
		{
			Name:        "cache_retrieve",
			Description: "Look up a value in the tiered cache.",
			Category:    "cache",
			Permission:  toolbox.PermissionNone,
			InputSchema: objectSchema(map[string]interface{}{
				"tier": tierProp,
				"key":  stringProp("Entry key."),
			}, "tier", "key"),
			Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Tier string `json:"tier"`
					Key  string `json:"key"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				entry, found, err := cache.Retrieve(tieredcache.Tier(args.Tier), args.Key)
				if err != nil {
					return nil, err
				}
				if !found {
					return map[string]interface{}{"found": false}, nil
				}
				return map[string]interface{}{"found": true, "value": entry.Value}, nil
			},
		},
		{
			Name:        "cache_list",
			Description: "List live cache entries, optionally restricted to one tier.",
			Category:    "cache",
			Permission:  toolbox.PermissionNone,
			InputSchema: objectSchema(map[string]interface{}{
				"tier": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"", "reasoning", "project", "vault"},
					"description": "Tier to list. Empty lists all tiers.",
				},
			}),
			Execute: func(_ context.Context, raw json.RawMessage) (interface{}, error) {
				var args struct {
					Tier string `json:"tier"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				entries, err := cache.List(tieredcache.Tier(args.Tier))
				if err != nil {
					return nil, err
				}
				var sb strings.Builder
				for _, e := range entries {
					fmt.Fprintf(&sb, "%s (expires %s)\n", e.Key, e.ExpiresAt.Format(time.RFC3339))
				}
				if sb.Len() == 0 {
					return "no live entries", nil
				}
				return sb.String(), nil
			},
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}
