package agent

import (
	"errors"
	"fmt"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/gateway"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/tool"
)

// Config describes one agent explicitly: its identity, instructions, tool
// registry and limits. Configs are composed, never inherited; everything an
// agent needs is injected here at construction time.
type Config struct {
	// Name identifies the agent; it authors the agent's conversation turns.
	Name string
	// Description is a short capability summary used by supervisors for routing.
	Description string
	// Instructions is the system prompt (static or provider-backed).
	Instructions Instruction
	// Registry is the agent's tool catalog. Nil means no tools beyond ask_human.
	Registry *tool.Registry
	// Gateway is the model endpoint the loop consults for decisions.
	Gateway gateway.Gateway
	// IterationCap bounds gateway decisions per invocation. Required: there is
	// no sensible universal default.
	IterationCap int
	// MaxParallelTools bounds concurrent tool dispatch within one decision.
	// Zero means unbounded.
	MaxParallelTools int
	// Checkpoints persists suspension snapshots. Defaults to an in-process
	// store when nil; deployments that resume across processes must supply a
	// durable implementation.
	Checkpoints core.CheckpointStore
	// Logger receives structured log lines. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Validate reports configuration errors that would make the loop inoperable.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("agent config: Name is required")
	}
	if c.Gateway == nil {
		return fmt.Errorf("agent config %q: Gateway is required", c.Name)
	}
	if c.IterationCap <= 0 {
		return fmt.Errorf("agent config %q: IterationCap must be positive", c.Name)
	}
	return nil
}
