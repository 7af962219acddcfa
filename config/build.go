package config

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/agentloop/agentloop/agent"
	"github.com/agentloop/agentloop/checkpoint"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/gateway"
	anthropicgw "github.com/agentloop/agentloop/gateway/anthropic"
	openaigw "github.com/agentloop/agentloop/gateway/openai"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/supervisor"
	"github.com/agentloop/agentloop/tool"
)

// BuildOptions supply the pieces a YAML file cannot express.
type BuildOptions struct {
	// Registries maps agent names to their tool catalogs. Agents without an
	// entry get no tools beyond ask_human.
	Registries map[string]*tool.Registry
	// Gateways overrides the provider-built gateway for the named agent (or
	// supervisor). Tests use this to substitute scripted gateways.
	Gateways map[string]gateway.Gateway
	// Logger overrides the logging section entirely.
	Logger logging.Logger
}

// Runtime is the built form of a definition file.
type Runtime struct {
	Agents      map[string]*agent.Loop
	Supervisor  *supervisor.Supervisor
	Checkpoints core.CheckpointStore
	Logger      logging.Logger
}

// Build turns a parsed definition into live loops. All agents (and the
// supervisor, when declared) share one checkpoint store and one logger.
func (f *File) Build(opts BuildOptions) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		level, err := logging.ParseLevel(f.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		logger = logging.NewSlogLogger(level, f.Logging.Format)
	}

	store, err := f.buildStore()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Agents:      make(map[string]*agent.Loop, len(f.Agents)),
		Checkpoints: store,
		Logger:      logger,
	}

	for _, def := range f.Agents {
		gw := opts.Gateways[def.Name]
		if gw == nil {
			gw = buildGateway(def.Provider, def.Model, def.Temperature)
		}
		loop, err := agent.NewLoop(agent.Config{
			Name:             def.Name,
			Description:      def.Description,
			Instructions:     agent.NewInstructionFromText(def.Instructions),
			Registry:         opts.Registries[def.Name],
			Gateway:          gw,
			IterationCap:     def.IterationCap,
			MaxParallelTools: def.MaxParallelTools,
			Checkpoints:      store,
			Logger:           logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build agent %q: %w", def.Name, err)
		}
		rt.Agents[def.Name] = loop
	}

	if def := f.Supervisor; def != nil {
		gw := opts.Gateways[def.Name]
		if gw == nil {
			gw = buildGateway(def.Provider, def.Model, def.Temperature)
		}
		subs := make([]*agent.Loop, len(def.Agents))
		for i, name := range def.Agents {
			subs[i] = rt.Agents[name]
		}
		sup, err := supervisor.New(supervisor.Config{
			Name:        def.Name,
			Gateway:     gw,
			SubAgents:   subs,
			Checkpoints: store,
			MaxHops:     def.MaxHops,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build supervisor %q: %w", def.Name, err)
		}
		rt.Supervisor = sup
	}

	return rt, nil
}

func (f *File) buildStore() (core.CheckpointStore, error) {
	if f.Checkpoints.Store == "file" {
		store, err := checkpoint.NewFileStore(f.Checkpoints.Dir)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return store, nil
	}
	return checkpoint.NewInMemoryStore(), nil
}

// buildGateway constructs a vendor gateway from provider settings. Provider
// names were validated during Parse.
func buildGateway(provider, model string, temperature *float64) gateway.Gateway {
	switch provider {
	case "anthropic":
		return anthropicgw.New(func(o *anthropicgw.Options) {
			if model != "" {
				o.Model = anthropic.Model(model)
			}
			if temperature != nil {
				o.Temperature = *temperature
			}
		})
	default:
		return openaigw.New(func(o *openaigw.Options) {
			if model != "" {
				o.Model = model
			}
			if temperature != nil {
				o.Temperature = *temperature
			}
		})
	}
}
