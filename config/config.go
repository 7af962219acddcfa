package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the root of a YAML definition file.
type File struct {
	Logging     LoggingDef    `yaml:"logging"`
	Checkpoints CheckpointDef `yaml:"checkpoints"`
	Agents      []AgentDef    `yaml:"agents"`
	Supervisor  *SupervisorDef `yaml:"supervisor"`
}

// LoggingDef selects the built-in slog logger's level and format.
type LoggingDef struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// CheckpointDef selects the checkpoint store backing suspensions.
type CheckpointDef struct {
	Store string `yaml:"store"` // memory (default) or file
	Dir   string `yaml:"dir"`   // required for the file store
}

// AgentDef declares one agent. Tools are injected at build time by name.
type AgentDef struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	Instructions     string   `yaml:"instructions"`
	Provider         string   `yaml:"provider"` // openai or anthropic
	Model            string   `yaml:"model"`
	Temperature      *float64 `yaml:"temperature"`
	IterationCap     int      `yaml:"iteration_cap"`
	MaxParallelTools int      `yaml:"max_parallel_tools"`
}

// SupervisorDef declares a supervisor over a subset of the declared agents.
type SupervisorDef struct {
	Name        string   `yaml:"name"`
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxHops     int      `yaml:"max_hops"`
	Agents      []string `yaml:"agents"`
}

// Load reads and parses a YAML definition file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML definition bytes and validates them.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if len(f.Agents) == 0 {
		return fmt.Errorf("config: at least one agent is required")
	}

	switch f.Checkpoints.Store {
	case "", "memory":
	case "file":
		if f.Checkpoints.Dir == "" {
			return fmt.Errorf("config: checkpoints.dir is required for the file store")
		}
	default:
		return fmt.Errorf("config: unknown checkpoint store %q", f.Checkpoints.Store)
	}

	names := map[string]bool{}
	for i, a := range f.Agents {
		if a.Name == "" {
			return fmt.Errorf("config: agents[%d]: name is required", i)
		}
		if names[a.Name] {
			return fmt.Errorf("config: duplicate agent %q", a.Name)
		}
		names[a.Name] = true
		if err := validateProvider(a.Provider); err != nil {
			return fmt.Errorf("config: agent %q: %w", a.Name, err)
		}
		if a.IterationCap <= 0 {
			return fmt.Errorf("config: agent %q: iteration_cap must be positive", a.Name)
		}
	}

	if s := f.Supervisor; s != nil {
		if s.Name == "" {
			return fmt.Errorf("config: supervisor: name is required")
		}
		if err := validateProvider(s.Provider); err != nil {
			return fmt.Errorf("config: supervisor %q: %w", s.Name, err)
		}
		if s.MaxHops <= 0 {
			return fmt.Errorf("config: supervisor %q: max_hops must be positive", s.Name)
		}
		if len(s.Agents) == 0 {
			return fmt.Errorf("config: supervisor %q: at least one agent is required", s.Name)
		}
		for _, name := range s.Agents {
			if !names[name] {
				return fmt.Errorf("config: supervisor %q: unknown agent %q", s.Name, name)
			}
		}
	}

	return nil
}

func validateProvider(provider string) error {
	switch provider {
	case "openai", "anthropic":
		return nil
	case "":
		return fmt.Errorf("provider is required")
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}
}
