package toolbox

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compileSchema turns a tool's InputSchema map into a compiled validator.
// A nil schema compiles to permit-anything.
func compileSchema(toolName string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]interface{}{}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema for %s: %w", toolName, err)
	}
	compiled, err := jsonschema.CompileString(toolName+"_input", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile input schema for %s: %w", toolName, err)
	}
	return compiled, nil
}

// validateInput checks raw call input against a compiled schema. The returned
// details carry the validator's diagnostics for the model to read.
func validateInput(schema *jsonschema.Schema, raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return map[string]interface{}{"parse_error": err.Error()}, fmt.Errorf("input is not valid JSON: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		details := map[string]interface{}{"validation": err.Error()}
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			details["validation"] = ve.BasicOutput()
		}
		return details, fmt.Errorf("input does not match schema: %w", err)
	}
	return nil, nil
}
