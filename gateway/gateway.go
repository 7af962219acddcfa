// Package gateway defines the abstract contract between the orchestration
// loop and a managed model endpoint. A Gateway turns a conversation plus a
// tool catalog into a Decision: either a final answer or an ordered set of
// tool-call requests. Vendor adapters live in the openai and anthropic
// subpackages; Scripted provides a deterministic in-memory gateway for tests.
package gateway

import (
	"context"
	"fmt"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/tool"
)

// Request captures the normalized gateway input produced by the loop.
type Request struct {
	Instructions string      `json:"instructions"`
	Conversation []core.Turn `json:"conversation"`
	Tools        []tool.Spec `json:"tools,omitempty"`
}

// Usage captures token statistics for a decision. The loop treats it as
// opaque observability data, never logic-relevant.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Decision is the gateway's structured output for one step. ToolCalls empty
// means a final answer. When ToolCalls is non-empty any accompanying Text is
// recorded in the conversation but does not terminate the loop.
type Decision struct {
	Text      string                 `json:"text,omitempty"`
	ToolCalls []core.ToolCallRequest `json:"tool_calls,omitempty"`
	Usage     *Usage                 `json:"usage,omitempty"`
}

// IsFinal reports whether the decision carries no tool-call requests.
func (d Decision) IsFinal() bool { return len(d.ToolCalls) == 0 }

// Gateway is the minimal interface the orchestration loop requires from a
// model endpoint. Implementations must be safe for concurrent use across
// conversations; calls for one conversation are serialized by construction.
type Gateway interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// ErrorCode categorizes gateway failures.
type ErrorCode string

const (
	// ErrCodeRateLimited indicates the endpoint rejected the call for quota reasons.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeUnavailable indicates a transient transport or server failure.
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeMalformedResponse indicates the endpoint returned a payload that
	// could not be parsed into a well-formed Decision.
	ErrCodeMalformedResponse ErrorCode = "malformed_response"
)

// Error is the typed failure surfaced by gateways. The loop retries
// retryable codes exactly once, then fails the invocation.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error [%s]", e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the loop may retry this failure once.
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrCodeRateLimited, ErrCodeUnavailable, ErrCodeMalformedResponse:
		return true
	default:
		return false
	}
}

// NewError constructs a typed gateway error wrapping an optional cause.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}
