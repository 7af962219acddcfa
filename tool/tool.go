// Package tool implements the function / tool calling subsystem that lets the
// orchestration loop invoke structured capabilities (APIs, computations,
// side-effects) with schema validated arguments, consistent error handling and
// rich metadata for model guidance.
package tool

import (
	"context"
	"fmt"
)

// AskHuman is the reserved tool name that signals suspension for human input
// rather than ordinary execution. It is never registered or dispatched; the
// orchestration loop intercepts it and creates a checkpoint.
const AskHuman = "ask_human"

// Tool defines the interface for extending agent capabilities with external
// functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Receive their dependencies (clients, connections) at construction time,
//     never from ambient globals, so registries are safe to share across
//     concurrently running conversations
//   - Be free of any dependency on the orchestration loop's internal state
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is provided to the model to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with already-validated arguments. Any returned
	// error (or panic) is absorbed by the executor into an error result; it
	// never crashes the loop or affects sibling calls in the same decision.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Spec is the read-only description of a registered tool presented to a
// gateway as part of the tool catalog.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// AskHumanSpec describes the reserved ask_human tool so gateways can
// advertise it to the model alongside ordinary tools.
func AskHumanSpec() Spec {
	return Spec{
		Name:        AskHuman,
		Description: "Ask the human user a clarifying question when required information is missing. The conversation pauses until the human answers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "description": "The question to ask the human"},
			},
			"required": []string{"question"},
		},
	}
}

// DuplicateToolError indicates a Register call with an already-taken name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// UnknownToolError indicates a dispatch against an unregistered tool name.
// The orchestration loop converts it into an error tool result rather than
// propagating, so the model can recover.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
