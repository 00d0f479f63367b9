package tools

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownTool marks a call naming a tool that was never registered.
// It is recoverable: the failure is reported back to the model.
var ErrUnknownTool = errors.New("unknown tool")

// InvalidArgumentsError marks arguments that failed schema validation.
// The offending call never reaches the language server.
type InvalidArgumentsError struct {
	Tool   string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// DecodeArgs parses the raw tool-call arguments into a generic map.
func DecodeArgs(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// ValidateCall checks a named call against the registry before execution.
func (r *Registry) ValidateCall(name string, args map[string]interface{}) error {
	schema, ok := r.Schema(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if err := validateAgainstSchema(schema, args); err != nil {
		return &InvalidArgumentsError{Tool: name, Reason: err.Error()}
	}
	return nil
}

func validateAgainstSchema(schema Schema, args map[string]interface{}) error {
	known := make(map[string]bool, len(schema.Parameters))
	for _, field := range schema.Parameters {
		known[field.Name] = true
		val, exists := args[field.Name]
		if field.Required && !exists {
			return fmt.Errorf("%s is required", field.Name)
		}
		if !exists {
			continue
		}
		switch field.Type {
		case "string":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("%s must be string", field.Name)
			}
			if field.Required && s == "" {
				return fmt.Errorf("%s must not be empty", field.Name)
			}
		case "boolean":
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("%s must be boolean", field.Name)
			}
		case "array":
			if _, ok := val.([]interface{}); !ok {
				return fmt.Errorf("%s must be array", field.Name)
			}
		case "integer":
			switch n := val.(type) {
			case float64:
				if n != float64(int64(n)) {
					return fmt.Errorf("%s must be integer", field.Name)
				}
			case int, int64:
			default:
				return fmt.Errorf("%s must be integer", field.Name)
			}
		}
		if len(field.Enum) > 0 {
			s, _ := val.(string)
			valid := false
			for _, allowed := range field.Enum {
				if s == allowed {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("%s must be one of %v", field.Name, field.Enum)
			}
		}
	}
	for name := range args {
		if !known[name] {
			return fmt.Errorf("unexpected argument %q", name)
		}
	}
	return nil
}
