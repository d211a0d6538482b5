// Package tools provides the tool registry: the mapping from tool
// names to implementations and to the JSON-schema descriptors the
// completion service sees. The dispatch loop is agnostic to what a
// given tool does as long as it conforms to this shape.
package tools

import (
	"context"
	"fmt"

	"nbcopilot/internal/types"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// Schema defines the JSON schema for tool arguments.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one registered capability. Tools are constructed against a
// concrete session (store, search index) at wiring time; there is no
// ambient global lookup.
type Tool struct {
	// Name is the unique identifier advertised to the completion service.
	Name string

	// Description explains what the tool does.
	Description string

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema Schema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition renders the tool as a completion-service descriptor.
func (t *Tool) Definition() types.ToolDefinition {
	props := make(map[string]any, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		props[name] = p
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// Result wraps the outcome of one tool execution. Failure is an
// explicit field, not a formatted string buried in Output.
type Result struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Output is the string result from the tool.
	Output string

	// Err is set if the tool failed.
	Err error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *Result) IsSuccess() bool {
	return r.Err == nil
}

// Content renders the result as the tool-turn content fed back to the
// assistant: the output on success, a synthesized error string on
// failure.
func (r *Result) Content() string {
	if r.Err != nil {
		return fmt.Sprintf("Error: %s failed - %v", r.ToolName, r.Err)
	}
	return r.Output
}

// Argument coercion helpers. JSON numbers decode as float64; tools
// that take indices need ints.

// StringArg extracts a string argument.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgType, key)
	}
	return s, nil
}

// OptionalStringArg extracts a string argument, defaulting when absent.
func OptionalStringArg(args map[string]any, key, fallback string) (string, error) {
	v, ok := args[key]
	if !ok {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgType, key)
	}
	return s, nil
}

// IntArg extracts an integer argument.
func IntArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidArgType, key)
	}
}

// OptionalIntArg extracts an integer argument, defaulting when absent.
func OptionalIntArg(args map[string]any, key string, fallback int) (int, error) {
	if _, ok := args[key]; !ok {
		return fallback, nil
	}
	return IntArg(args, key)
}

// OptionalFloatArg extracts a float argument, defaulting when absent.
func OptionalFloatArg(args map[string]any, key string, fallback float64) (float64, error) {
	v, ok := args[key]
	if !ok {
		return fallback, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgType, key)
	}
	return f, nil
}

// OptionalBoolArg extracts a bool argument, defaulting when absent.
func OptionalBoolArg(args map[string]any, key string, fallback bool) (bool, error) {
	v, ok := args[key]
	if !ok {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidArgType, key)
	}
	return b, nil
}

// StringSliceArg extracts a list-of-strings argument.
func StringSliceArg(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an array of strings", ErrInvalidArgType, key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be an array of strings", ErrInvalidArgType, key)
		}
		out = append(out, s)
	}
	return out, nil
}
