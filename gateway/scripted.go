package gateway

import (
	"context"
	"sync"

	"github.com/agentloop/agentloop/core"
)

// ScriptStep is one canned gateway response: either a Decision or an error.
type ScriptStep struct {
	Decision Decision
	Err      error
}

// FinalStep builds a step answering with final text.
func FinalStep(text string) ScriptStep {
	return ScriptStep{Decision: Decision{Text: text}}
}

// ToolCallStep builds a step requesting the given tool calls in order.
func ToolCallStep(calls ...core.ToolCallRequest) ScriptStep {
	return ScriptStep{Decision: Decision{ToolCalls: calls}}
}

// ErrStep builds a step failing with the given error.
func ErrStep(err error) ScriptStep {
	return ScriptStep{Err: err}
}

// Scripted is a deterministic in-memory Gateway useful for tests and
// examples. It replays a fixed sequence of steps and records every request
// for later assertions.
type Scripted struct {
	mu         sync.Mutex
	steps      []ScriptStep
	repeatLast bool
	requests   []Request
}

// NewScripted constructs a scripted gateway replaying steps in order. Once
// the script is exhausted further calls fail with an unavailable error.
func NewScripted(steps ...ScriptStep) *Scripted {
	return &Scripted{steps: steps}
}

// NewScriptedRepeating constructs a scripted gateway that replays steps in
// order and then repeats the last step forever. Useful for cap-enforcement
// tests where the model never answers.
func NewScriptedRepeating(steps ...ScriptStep) *Scripted {
	return &Scripted{steps: steps, repeatLast: true}
}

// Decide implements Gateway.
func (s *Scripted) Decide(_ context.Context, req Request) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)

	idx := len(s.requests) - 1
	if idx >= len(s.steps) {
		if s.repeatLast && len(s.steps) > 0 {
			idx = len(s.steps) - 1
		} else {
			return Decision{}, NewError(ErrCodeUnavailable, "script exhausted", nil)
		}
	}

	step := s.steps[idx]
	if step.Err != nil {
		return Decision{}, step.Err
	}
	return step.Decision, nil
}

// Calls returns how many times Decide was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every request received, in order.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := make([]Request, len(s.requests))
	copy(reqs, s.requests)
	return reqs
}
