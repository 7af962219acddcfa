package core

import (
	"time"

	"github.com/google/uuid"
)

// TurnKind categorizes a conversation turn.
type TurnKind string

const (
	// TurnUser is a human-authored input turn.
	TurnUser TurnKind = "user"
	// TurnAssistant is a model-authored turn: text, tool-call requests or both.
	TurnAssistant TurnKind = "assistant"
	// TurnTool records the outcome of a single tool-call request.
	TurnTool TurnKind = "tool"
	// TurnNote is a system annotation (dropped duplicate clarifications,
	// supervisor routing markers). Notes are kept in history but are not
	// conversational content.
	TurnNote TurnKind = "note"
)

// ToolCallRequest is a single model-issued instruction to invoke a named tool.
// Created by a gateway Decision; consumed exactly once by the executor (or by
// the suspension path when Name is the reserved ask_human tool).
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ResultStatus indicates whether a tool call succeeded.
type ResultStatus string

const (
	// ResultSuccess marks a tool call that produced a usable output.
	ResultSuccess ResultStatus = "success"
	// ResultError marks a tool call that failed; Error carries the reason.
	ResultError ResultStatus = "error"
)

// ToolResult is the outcome of one ToolCallRequest, correlated by CallID.
type ToolResult struct {
	CallID string       `json:"call_id"`
	Name   string       `json:"name"`
	Output any          `json:"output,omitempty"`
	Status ResultStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// Turn is one immutable record in a conversation. A single struct with
// optional fields rather than an interface union so histories serialize
// cleanly for checkpointing.
//
// Exactly one shape is populated per kind:
//   - TurnUser: Text
//   - TurnAssistant: Text and/or ToolCalls
//   - TurnTool: ToolResult
//   - TurnNote: Text
type Turn struct {
	ID        string            `json:"id"`
	Kind      TurnKind          `json:"kind"`
	Author    string            `json:"author"` // "user", agent name, or "system"
	Text      string            `json:"text,omitempty"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolResult *ToolResult      `json:"tool_result,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewID generates a new unique identifier for turns and tool-call requests.
func NewID() string { return uuid.NewString() }

// NewUserTurn creates a user-authored text turn.
func NewUserTurn(text string) Turn {
	return Turn{ID: NewID(), Kind: TurnUser, Author: "user", Text: text, Timestamp: time.Now().UTC()}
}

// NewAssistantTurn creates an assistant turn carrying optional prose and
// the Decision's tool-call requests in emission order.
func NewAssistantTurn(author, text string, calls []ToolCallRequest) Turn {
	return Turn{ID: NewID(), Kind: TurnAssistant, Author: author, Text: text, ToolCalls: calls, Timestamp: time.Now().UTC()}
}

// NewToolResultTurn wraps a ToolResult as a turn authored by the executing agent.
func NewToolResultTurn(author string, result ToolResult) Turn {
	r := result
	return Turn{ID: NewID(), Kind: TurnTool, Author: author, ToolResult: &r, Timestamp: time.Now().UTC()}
}

// NewNoteTurn creates a system annotation turn.
func NewNoteTurn(text string) Turn {
	return Turn{ID: NewID(), Kind: TurnNote, Author: "system", Text: text, Timestamp: time.Now().UTC()}
}

// HasToolCalls reports whether this turn carries tool-call requests.
func (t Turn) HasToolCalls() bool { return len(t.ToolCalls) > 0 }

// FindToolCall returns the tool-call request with the given id, if present.
func (t Turn) FindToolCall(id string) (ToolCallRequest, bool) {
	for _, tc := range t.ToolCalls {
		if tc.ID == id {
			return tc, true
		}
	}
	return ToolCallRequest{}, false
}
