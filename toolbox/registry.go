package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type registeredTool struct {
	def    Definition
	schema *jsonschema.Schema
}

// Registry holds tool definitions and dispatches calls against them. Tools
// register once at startup; a duplicate name is rejected rather than
// silently overwritten.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool. It fails on an empty name, a missing executor, a
// schema that does not compile, or a name that already exists.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("register tool: name is required")
	}
	if def.Execute == nil {
		return fmt.Errorf("register tool %s: executor is required", def.Name)
	}
	if def.Permission == "" {
		def.Permission = PermissionNone
	}
	schema, err := compileSchema(def.Name, def.InputSchema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("register tool %s: already registered", def.Name)
	}
	r.tools[def.Name] = &registeredTool{def: def, schema: schema}
	return nil
}

// MustRegister panics on a registration error. For startup wiring where a
// duplicate is a programming bug.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	return t.def, true
}

// Definitions returns all registered definitions, sorted by name so the tool
// catalogue sent to the model is deterministic.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute validates rawInput and runs the named tool. Every failure mode is
// normalized into a Result: unknown name, schema violation, executor error,
// executor panic, and context cancellation all come back as structured
// failures so a tool can never crash the loop that dispatched it.
func (r *Registry) Execute(ctx context.Context, name string, rawInput json.RawMessage) (result Result) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Fail(CodeNotFound, fmt.Sprintf("unknown tool: %s", name))
	}

	if details, err := validateInput(tool.schema, rawInput); err != nil {
		return FailWithDetails(CodeInvalidInput, err.Error(), details)
	}

	defer func() {
		if p := recover(); p != nil {
			result = FailWithDetails(CodeExecutionFailed,
				fmt.Sprintf("tool %s panicked", name),
				map[string]interface{}{"message": fmt.Sprint(p)})
		}
	}()

	data, err := tool.def.Execute(ctx, rawInput)
	if err != nil {
		if ctx.Err() != nil {
			return Fail(CodeAborted, fmt.Sprintf("tool %s aborted: %v", name, ctx.Err()))
		}
		return FailWithDetails(CodeExecutionFailed, err.Error(),
			map[string]interface{}{"message": err.Error()})
	}
	return Ok(data)
}
