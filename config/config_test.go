package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/gateway"
	"github.com/agentloop/agentloop/logging"
	"github.com/agentloop/agentloop/tool"
)

const sampleYAML = `
logging:
  level: debug
  format: text
checkpoints:
  store: memory
agents:
  - name: flight-agent
    description: Searches flights
    instructions: You are a flight specialist.
    provider: openai
    model: gpt-4o-mini
    temperature: 0.2
    iteration_cap: 4
  - name: hotel-agent
    description: Searches hotels
    instructions: You are a hotel specialist.
    provider: anthropic
    model: claude-3-5-sonnet-20241022
    iteration_cap: 4
supervisor:
  name: travel-desk
  provider: openai
  model: gpt-4o-mini
  max_hops: 4
  agents: [flight-agent, hotel-agent]
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", f.Logging.Level)
	require.Len(t, f.Agents, 2)
	assert.Equal(t, "flight-agent", f.Agents[0].Name)
	assert.Equal(t, "openai", f.Agents[0].Provider)
	require.NotNil(t, f.Agents[0].Temperature)
	assert.Equal(t, 0.2, *f.Agents[0].Temperature)
	assert.Nil(t, f.Agents[1].Temperature)

	require.NotNil(t, f.Supervisor)
	assert.Equal(t, 4, f.Supervisor.MaxHops)
	assert.Equal(t, []string{"flight-agent", "hotel-agent"}, f.Supervisor.Agents)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no agents":        `agents: []`,
		"missing name":     "agents:\n  - provider: openai\n    iteration_cap: 3",
		"bad provider":     "agents:\n  - name: a\n    provider: cohere\n    iteration_cap: 3",
		"zero cap":         "agents:\n  - name: a\n    provider: openai",
		"duplicate agents": "agents:\n  - name: a\n    provider: openai\n    iteration_cap: 3\n  - name: a\n    provider: openai\n    iteration_cap: 3",
		"file store no dir": `
checkpoints:
  store: file
agents:
  - name: a
    provider: openai
    iteration_cap: 3
`,
		"unknown supervised agent": `
agents:
  - name: a
    provider: openai
    iteration_cap: 3
supervisor:
  name: s
  provider: openai
  max_hops: 2
  agents: [b]
`,
		"not yaml": `{{{`,
	}

	for name, src := range cases {
		_, err := Parse([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestBuild_WithOverrides(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	echo := tool.NewFunctionTool("echo", "echoes", nil,
		func(_ context.Context, args map[string]any) (any, error) { return args, nil })

	rt, err := f.Build(BuildOptions{
		Registries: map[string]*tool.Registry{
			"flight-agent": tool.NewRegistryWith(echo),
		},
		Gateways: map[string]gateway.Gateway{
			"flight-agent": gateway.NewScripted(gateway.FinalStep("AL204.")),
			"hotel-agent":  gateway.NewScripted(gateway.FinalStep("Gartenhof.")),
			"travel-desk": gateway.NewScripted(
				gateway.FinalStep(`{"next": "flight-agent"}`),
				gateway.FinalStep(`{"next": "FINISH"}`),
			),
		},
		Logger: logging.NoOpLogger{},
	})
	require.NoError(t, err)

	require.Len(t, rt.Agents, 2)
	require.NotNil(t, rt.Supervisor)
	assert.Equal(t, "travel-desk", rt.Supervisor.Name())

	res, err := rt.Supervisor.Run(context.Background(), nil, "flight to Berlin")
	require.NoError(t, err)
	assert.Equal(t, core.StatusDone, res.Status)
	assert.Equal(t, "AL204.", res.Answer)
}

func TestBuild_FileStore(t *testing.T) {
	src := `
checkpoints:
  store: file
  dir: ` + t.TempDir() + `
agents:
  - name: a
    provider: openai
    iteration_cap: 3
`
	f, err := Parse([]byte(src))
	require.NoError(t, err)

	rt, err := f.Build(BuildOptions{
		Gateways: map[string]gateway.Gateway{"a": gateway.NewScripted(gateway.FinalStep("hi"))},
		Logger:   logging.NoOpLogger{},
	})
	require.NoError(t, err)
	assert.NotNil(t, rt.Checkpoints)
}
