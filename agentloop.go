// Package agentloop provides a high-level façade over the orchestration
// primitives (agents, tools, gateways, checkpoints) enabling rapid
// construction of tool-calling agents. Most applications interact with this
// package by:
//  1. Creating an Engine via New() (optionally overriding the checkpoint
//     store and logger)
//  2. Adding one or more agents (AddAgent) or a supervisor over several
//     specialized agents (AddSupervisor)
//  3. Running conversations (Run) and answering pending human questions
//     (Resume)
//
// The façade wires shared services — one checkpoint store, one logger —
// through every agent so suspensions taken anywhere can be resumed here. All
// defaults are safe for local development; production deployments typically
// supply a durable checkpoint store and a structured logger.
package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentloop/agentloop/agent"
	"github.com/agentloop/agentloop/checkpoint"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/supervisor"
)

// Options configures the Engine.
type Options struct {
	// Checkpoints persists suspension snapshots for every agent created
	// through this Engine. Defaults to an in-memory store.
	Checkpoints core.CheckpointStore

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Engine is the high-level façade aggregating agents and supervisors behind
// one run/resume surface.
type Engine struct {
	opts Options

	mu          sync.RWMutex
	agents      map[string]*agent.Loop
	supervisors map[string]*supervisor.Supervisor
}

// New creates an Engine with optional overrides. Unset services are
// initialized with in-memory implementations.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Checkpoints: checkpoint.NewInMemoryStore(),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		opts:        opts,
		agents:      map[string]*agent.Loop{},
		supervisors: map[string]*supervisor.Supervisor{},
	}
}

// AddAgent builds a loop from cfg and registers it under cfg.Name. The
// Engine's checkpoint store and logger fill any unset cfg fields.
func (e *Engine) AddAgent(cfg agent.Config) (*agent.Loop, error) {
	if cfg.Checkpoints == nil {
		cfg.Checkpoints = e.opts.Checkpoints
	}
	if cfg.Logger == nil {
		cfg.Logger = e.opts.Logger
	}

	loop, err := agent.NewLoop(cfg)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.agents[loop.Name()]; exists {
		return nil, fmt.Errorf("agent %q already registered", loop.Name())
	}
	e.agents[loop.Name()] = loop
	return loop, nil
}

// AddSupervisor builds a supervisor from cfg and registers it under cfg.Name.
// Its sub-agents should have been created via AddAgent so they share the
// Engine's checkpoint store.
func (e *Engine) AddSupervisor(cfg supervisor.Config) (*supervisor.Supervisor, error) {
	if cfg.Checkpoints == nil {
		cfg.Checkpoints = e.opts.Checkpoints
	}
	if cfg.Logger == nil {
		cfg.Logger = e.opts.Logger
	}

	sup, err := supervisor.New(cfg)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.supervisors[sup.Name()]; exists {
		return nil, fmt.Errorf("supervisor %q already registered", sup.Name())
	}
	e.supervisors[sup.Name()] = sup
	return sup, nil
}

// Agent returns the registered loop for name, or nil.
func (e *Engine) Agent(name string) *agent.Loop {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.agents[name]
}

// Supervisor returns the registered supervisor for name, or nil.
func (e *Engine) Supervisor(name string) *supervisor.Supervisor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.supervisors[name]
}

// Run starts a fresh conversation with the named agent or supervisor.
func (e *Engine) Run(ctx context.Context, name, input string) (*agent.Result, error) {
	e.mu.RLock()
	loop, isAgent := e.agents[name]
	sup, isSup := e.supervisors[name]
	e.mu.RUnlock()

	switch {
	case isAgent:
		return loop.Run(ctx, nil, input)
	case isSup:
		return sup.Run(ctx, nil, input)
	default:
		return nil, fmt.Errorf("no agent or supervisor named %q", name)
	}
}

// Resume answers the pending human question for a suspension token issued by
// any agent or supervisor on this Engine. The checkpoint itself records which
// agent asked; the Engine dispatches accordingly.
func (e *Engine) Resume(ctx context.Context, token, answer string) (*agent.Result, error) {
	cp, err := e.opts.Checkpoints.Load(token)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	loop := e.agents[cp.PendingAgent]
	var owner *supervisor.Supervisor
	for _, sup := range e.supervisors {
		if sup.Owns(cp.PendingAgent) {
			owner = sup
			break
		}
	}
	e.mu.RUnlock()

	// A suspension taken under a supervisor resumes through it so routing
	// continues after the sub-agent answers.
	if owner != nil {
		return owner.ResumeFromCheckpoint(ctx, cp, answer)
	}
	if loop == nil {
		return nil, fmt.Errorf("checkpoint names unknown agent %q", cp.PendingAgent)
	}
	return loop.ResumeFromCheckpoint(ctx, cp, answer)
}
