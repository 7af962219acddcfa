package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/internal/util"
	"github.com/agentloop/agentloop/logging"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaxParallel bounds concurrent dispatches within one decision batch.
	// Zero or negative means no explicit limit.
	MaxParallel int
	// Logger receives per-call structured log lines.
	Logger logging.Logger
}

// Executor invokes registered tools with validated arguments. It is a pure
// dispatch/validation layer: every failure mode (unknown tool, missing or
// mistyped arguments, implementation error, panic) is folded into an error
// ToolResult so one tool's failure never crashes the loop or affects sibling
// calls in the same decision.
type Executor struct {
	registry    *Registry
	maxParallel int
	logger      logging.Logger
}

// NewExecutor constructs an Executor over the given registry.
func NewExecutor(registry *Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		registry:    registry,
		maxParallel: opts.MaxParallel,
		logger:      opts.Logger,
	}
}

// Execute dispatches a single tool-call request and returns its result.
func (e *Executor) Execute(ctx context.Context, req core.ToolCallRequest) core.ToolResult {
	start := time.Now()
	e.logger.Debug("tool.call.start", "tool", req.Name, "call_id", req.ID)

	t, ok := e.registry.Get(req.Name)
	if !ok {
		err := &UnknownToolError{Name: req.Name}
		e.logger.Warn("tool.call.unknown", "tool", req.Name, "call_id", req.ID)
		return errorResult(req, err.Error())
	}

	if err := e.validate(req, t); err != nil {
		e.logger.Warn("tool.call.validation_failed", "tool", req.Name, "call_id", req.ID, "error", err.Error())
		return errorResult(req, err.Error())
	}

	output, err := e.invoke(ctx, t, req)
	if err != nil {
		e.logger.Error("tool.call.error", "tool", req.Name, "call_id", req.ID, "error", err.Error())
		return errorResult(req, err.Error())
	}

	e.logger.Info("tool.call.success", "tool", req.Name, "call_id", req.ID, "duration_ms", time.Since(start).Milliseconds())

	return core.ToolResult{
		CallID: req.ID,
		Name:   req.Name,
		Output: output,
		Status: core.ResultSuccess,
	}
}

// ExecuteAll dispatches a batch of requests belonging to one decision,
// possibly in parallel, and returns results re-assembled in the original
// request order. Ordering is part of the contract tools may rely on for
// correlating requests to results.
func (e *Executor) ExecuteAll(ctx context.Context, reqs []core.ToolCallRequest) []core.ToolResult {
	n := len(reqs)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		return []core.ToolResult{e.Execute(ctx, reqs[0])}
	}

	maxPar := e.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	batchStart := time.Now()
	results := make([]core.ToolResult, n)
	sem := make(chan struct{}, maxPar)
	var wg sync.WaitGroup

	for i := range reqs {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, req core.ToolCallRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.Execute(ctx, req)
		}(i, reqs[i])
	}

	wg.Wait()

	e.logger.Debug(
		"tool.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// validate checks the request arguments against the tool's declared schema
// before any dispatch. Missing required parameters are enumerated in a single
// error; type mismatches are caught by the schema compiled at registration.
func (e *Executor) validate(req core.ToolCallRequest, t Tool) error {
	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		return err
	}

	schema, ok := e.registry.compiled(req.Name)
	if !ok || schema == nil {
		return nil
	}

	normalized, err := normalizeArgs(args)
	if err != nil {
		return fmt.Errorf("arguments are not JSON-representable: %w", err)
	}
	return schema.Validate(normalized)
}

// invoke calls the implementation with panic recovery.
func (e *Executor) invoke(ctx context.Context, t Tool, req core.ToolCallRequest) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool.call.panic", "tool", req.Name, "call_id", req.ID, "recover", r)
			output = nil
			err = NewToolError(req.Name, fmt.Sprintf("panic: %v", r), "EXECUTION_ERROR")
		}
	}()

	output, err = t.Call(ctx, req.Arguments)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // already a ToolError -> forward unchanged
			return nil, toolErr
		}
		return nil, NewToolError(req.Name, err.Error(), "EXECUTION_ERROR")
	}
	return output, nil
}

func errorResult(req core.ToolCallRequest, msg string) core.ToolResult {
	return core.ToolResult{
		CallID: req.ID,
		Name:   req.Name,
		Status: core.ResultError,
		Error:  msg,
	}
}

// normalizeArgs round-trips arguments through JSON so schema validation sees
// the same value shapes a decoded model payload would have.
func normalizeArgs(args map[string]any) (any, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
