package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentloop/agentloop/checkpoint"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/gateway"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/tool"
)

// Failure reasons surfaced on failed results. Calling code can rely on these
// to distinguish "the agent gave up" from transport-level breakage.
const (
	ReasonIterationLimit = "iteration limit reached"
	ReasonGatewayFailure = "gateway failure after retry"
)

// Result is the outcome of one loop invocation (Run, Continue or Resume).
type Result struct {
	// Answer is the final text, set when Status is done.
	Answer string
	// Status is the conversation's terminal status for this invocation:
	// done, awaiting_human or failed.
	Status core.Status
	// Reason is the human-readable failure cause, set when Status is failed.
	Reason string
	// Question is the pending human-facing question, set when Status is
	// awaiting_human.
	Question string
	// CheckpointToken resumes a suspended conversation, set when Status is
	// awaiting_human.
	CheckpointToken string
	// Err is the typed underlying failure (e.g. *gateway.Error) for
	// inspection, set when Status is failed due to a gateway error.
	Err error
	// Conversation is the full state, attached for diagnosis in every outcome.
	Conversation *core.Conversation
}

// Loop is the orchestration state machine. It drives a conversation through
// gateway decisions (AwaitingDecision), tool dispatch (DispatchingTools) and
// the terminal states Answered, Suspended and Failed. One Loop serves many
// conversations; each invocation owns its conversation exclusively.
type Loop struct {
	cfg      Config
	executor *tool.Executor
	logger   logging.Logger
}

// NewLoop validates the config and constructs a Loop.
func NewLoop(cfg Config) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Registry == nil {
		cfg.Registry = tool.NewRegistry()
	}
	if cfg.Checkpoints == nil {
		cfg.Checkpoints = checkpoint.NewInMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}

	executor := tool.NewExecutor(cfg.Registry, func(o *tool.ExecutorOptions) {
		o.MaxParallel = cfg.MaxParallelTools
		o.Logger = cfg.Logger
	})

	return &Loop{cfg: cfg, executor: executor, logger: cfg.Logger}, nil
}

// Name returns the agent's identity.
func (l *Loop) Name() string { return l.cfg.Name }

// Description returns the agent's capability summary.
func (l *Loop) Description() string { return l.cfg.Description }

// Run starts (or extends) a conversation with a new user message and drives
// it to a terminal state. A nil conversation starts a fresh session.
//
// Run never returns an error for domain outcomes: cap exhaustion and gateway
// failure produce a failed Result with the full conversation attached.
func (l *Loop) Run(ctx context.Context, conv *core.Conversation, input string) (*Result, error) {
	if conv == nil {
		conv = core.NewConversation("")
	}
	conv.Append(core.NewUserTurn(input))
	return l.Continue(ctx, conv)
}

// Continue drives an existing conversation to a terminal state without
// appending a user turn. Supervisors use it to run a sub-agent over shared
// history.
func (l *Loop) Continue(ctx context.Context, conv *core.Conversation) (*Result, error) {
	conv.SetStatus(core.StatusRunning)

	l.logger.Debug("loop.run.start", "agent", l.cfg.Name, "conversation", conv.ID, "turns", conv.Len())

	for iteration := 0; iteration < l.cfg.IterationCap; iteration++ {
		decision, err := l.decide(ctx, conv)
		if err != nil {
			l.logger.Error("loop.gateway.failed", "agent", l.cfg.Name, "conversation", conv.ID, "error", err.Error())
			conv.Fail(ReasonGatewayFailure)
			return &Result{Status: core.StatusFailed, Reason: ReasonGatewayFailure, Err: err, Conversation: conv}, nil
		}

		l.logger.Debug(
			"loop.decision.received",
			"agent", l.cfg.Name,
			"conversation", conv.ID,
			"iteration", iteration+1,
			"tool_calls", len(decision.ToolCalls),
		)

		if decision.IsFinal() {
			conv.Append(core.NewAssistantTurn(l.cfg.Name, decision.Text, nil))
			conv.SetStatus(core.StatusDone)
			l.logger.Info("loop.answered", "agent", l.cfg.Name, "conversation", conv.ID, "iterations", iteration+1)
			return &Result{Answer: decision.Text, Status: core.StatusDone, Conversation: conv}, nil
		}

		// Record the model's intent before any execution so it survives
		// downstream failures.
		conv.Append(core.NewAssistantTurn(l.cfg.Name, decision.Text, decision.ToolCalls))

		if res, suspended := l.dispatch(ctx, conv, decision.ToolCalls); suspended {
			return res, nil
		}
	}

	conv.Fail(ReasonIterationLimit)
	l.logger.Warn("loop.iteration_limit", "agent", l.cfg.Name, "conversation", conv.ID, "cap", l.cfg.IterationCap)
	return &Result{Status: core.StatusFailed, Reason: ReasonIterationLimit, Conversation: conv}, nil
}

// Resume loads and consumes the checkpoint for token, converts the human's
// answer into the pending tool result and re-enters the decision loop.
// A token that was never issued or already consumed fails with
// core.ErrStaleCheckpoint.
func (l *Loop) Resume(ctx context.Context, token, answer string) (*Result, error) {
	cp, err := l.cfg.Checkpoints.Load(token)
	if err != nil {
		if errors.Is(err, core.ErrStaleCheckpoint) {
			return nil, err
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return l.ResumeFromCheckpoint(ctx, cp, answer)
}

// ResumeFromCheckpoint resumes from an already-loaded checkpoint. Used by
// supervisors, which load the checkpoint themselves to discover the owning
// sub-agent before dispatching.
func (l *Loop) ResumeFromCheckpoint(ctx context.Context, cp *core.Checkpoint, answer string) (*Result, error) {
	conv := cp.Conversation

	conv.Append(core.NewToolResultTurn(l.cfg.Name, core.ToolResult{
		CallID: cp.PendingCallID,
		Name:   tool.AskHuman,
		Output: answer,
		Status: core.ResultSuccess,
	}))

	l.logger.Info("loop.resume", "agent", l.cfg.Name, "conversation", conv.ID, "call_id", cp.PendingCallID)

	return l.Continue(ctx, conv)
}

// decide performs one gateway call, retrying a retryable failure exactly once.
func (l *Loop) decide(ctx context.Context, conv *core.Conversation) (gateway.Decision, error) {
	instructions, err := l.cfg.Instructions.Resolve(conv)
	if err != nil {
		return gateway.Decision{}, fmt.Errorf("resolve instructions: %w", err)
	}

	req := gateway.Request{
		Instructions: instructions,
		Conversation: conv.History(),
		Tools:        l.catalog(),
	}

	decision, err := l.cfg.Gateway.Decide(ctx, req)
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && gwErr.Retryable() {
			l.logger.Warn("loop.gateway.retry", "agent", l.cfg.Name, "conversation", conv.ID, "code", string(gwErr.Code))
			decision, err = l.cfg.Gateway.Decide(ctx, req)
		}
	}
	if err != nil {
		return gateway.Decision{}, err
	}

	if decision.Usage != nil {
		l.logger.Debug(
			"loop.gateway.usage",
			"agent", l.cfg.Name,
			"conversation", conv.ID,
			"prompt_tokens", decision.Usage.PromptTokens,
			"completion_tokens", decision.Usage.CompletionTokens,
		)
	}

	return decision, nil
}

// catalog is the registry's specs plus the reserved ask_human tool.
func (l *Loop) catalog() []tool.Spec {
	return append(l.cfg.Registry.Describe(), tool.AskHumanSpec())
}

// dispatch handles one decision's tool calls in emission order. When an
// ask_human call is encountered the loop suspends immediately: calls before
// it have executed, later ask_human calls are dropped with a note, and later
// ordinary calls receive an error result so every request is answered exactly
// once. Returns the suspension result and true when suspended.
func (l *Loop) dispatch(ctx context.Context, conv *core.Conversation, calls []core.ToolCallRequest) (*Result, bool) {
	suspendAt := -1
	for i, call := range calls {
		if call.Name == tool.AskHuman {
			suspendAt = i
			break
		}
	}

	if suspendAt == -1 {
		for _, result := range l.executor.ExecuteAll(ctx, calls) {
			conv.Append(core.NewToolResultTurn(l.cfg.Name, result))
		}
		return nil, false
	}

	for _, result := range l.executor.ExecuteAll(ctx, calls[:suspendAt]) {
		conv.Append(core.NewToolResultTurn(l.cfg.Name, result))
	}

	pending := calls[suspendAt]
	for _, call := range calls[suspendAt+1:] {
		if call.Name == tool.AskHuman {
			// First ask_human wins; answering two independent clarifying
			// questions atomically is out of scope.
			l.logger.Warn("loop.ask_human.dropped", "agent", l.cfg.Name, "conversation", conv.ID, "call_id", call.ID)
			conv.Append(core.NewNoteTurn(fmt.Sprintf("dropped duplicate clarification request %s: only the first ask_human per decision is honored", call.ID)))
			continue
		}
		conv.Append(core.NewToolResultTurn(l.cfg.Name, core.ToolResult{
			CallID: call.ID,
			Name:   call.Name,
			Status: core.ResultError,
			Error:  "not executed: conversation suspended for human input",
		}))
	}

	return l.suspend(conv, pending)
}

// suspend checkpoints the conversation for the pending ask_human call and
// returns the awaiting_human result. The checkpoint owns the state until
// resume; no goroutine or lock is held.
func (l *Loop) suspend(conv *core.Conversation, pending core.ToolCallRequest) (*Result, bool) {
	question := extractQuestion(pending)

	conv.SetStatus(core.StatusAwaitingHuman)

	cp := core.NewCheckpoint(conv, pending.ID, question)
	cp.PendingAgent = l.cfg.Name

	token, err := l.cfg.Checkpoints.Save(cp)
	if err != nil {
		reason := fmt.Sprintf("checkpoint store failure: %v", err)
		conv.Fail(reason)
		l.logger.Error("loop.checkpoint.save_failed", "agent", l.cfg.Name, "conversation", conv.ID, "error", err.Error())
		return &Result{Status: core.StatusFailed, Reason: reason, Err: err, Conversation: conv}, true
	}

	l.logger.Info("loop.suspend", "agent", l.cfg.Name, "conversation", conv.ID, "call_id", pending.ID, "token", token)

	return &Result{
		Status:          core.StatusAwaitingHuman,
		Question:        question,
		CheckpointToken: token,
		Conversation:    conv,
	}, true
}

// extractQuestion pulls the human-facing question from an ask_human request.
func extractQuestion(call core.ToolCallRequest) string {
	if q, ok := call.Arguments["question"].(string); ok && q != "" {
		return q
	}
	return "The agent needs more information to continue."
}
