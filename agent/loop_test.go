package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/checkpoint"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/gateway"
	"github.com/agentloop/agentloop/tool"
)

func geocodeTool() *tool.FunctionTool {
	return tool.NewFunctionTool("get_coordinates", "resolve a city to coordinates",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"lat": 52.52, "lon": 13.405}, nil
		})
}

func forecastTool() *tool.FunctionTool {
	return tool.NewFunctionTool("get_weather", "forecast for coordinates",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"lat": map[string]any{"type": "number"},
				"lon": map[string]any{"type": "number"},
			},
			"required": []string{"lat", "lon"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return "21C, partly cloudy", nil
		})
}

func newTestLoop(t *testing.T, gw gateway.Gateway, reg *tool.Registry, store core.CheckpointStore) *Loop {
	t.Helper()
	loop, err := NewLoop(Config{
		Name:         "weather",
		Description:  "answers weather questions",
		Instructions: NewInstructionFromText("You are a weather assistant."),
		Registry:     reg,
		Gateway:      gw,
		IterationCap: 5,
		Checkpoints:  store,
	})
	require.NoError(t, err)
	return loop
}

func kinds(conv *core.Conversation) []core.TurnKind {
	turns := conv.AllTurns()
	res := make([]core.TurnKind, len(turns))
	for i, turn := range turns {
		res[i] = turn.Kind
	}
	return res
}

// -------------------- Config --------------------

func TestConfigValidation(t *testing.T) {
	gw := gateway.NewScripted(gateway.FinalStep("hi"))

	_, err := NewLoop(Config{Gateway: gw, IterationCap: 3})
	assert.Error(t, err) // missing name

	_, err = NewLoop(Config{Name: "a", IterationCap: 3})
	assert.Error(t, err) // missing gateway

	_, err = NewLoop(Config{Name: "a", Gateway: gw})
	assert.Error(t, err) // cap is required, no default

	loop, err := NewLoop(Config{Name: "a", Gateway: gw, IterationCap: 1})
	require.NoError(t, err)
	assert.Equal(t, "a", loop.Name())
}

// -------------------- Scenarios --------------------

func TestLoop_WeatherToolChain(t *testing.T) {
	gw := gateway.NewScripted(
		gateway.ToolCallStep(core.ToolCallRequest{ID: "c1", Name: "get_coordinates", Arguments: map[string]any{"city": "Berlin"}}),
		gateway.ToolCallStep(core.ToolCallRequest{ID: "c2", Name: "get_weather", Arguments: map[string]any{"lat": 52.52, "lon": 13.405}}),
		gateway.FinalStep("It is 21C and partly cloudy in Berlin."),
	)
	loop := newTestLoop(t, gw, tool.NewRegistryWith(geocodeTool(), forecastTool()), nil)

	res, err := loop.Run(context.Background(), nil, "weather in Berlin?")
	require.NoError(t, err)

	assert.Equal(t, core.StatusDone, res.Status)
	assert.Equal(t, "It is 21C and partly cloudy in Berlin.", res.Answer)
	assert.Equal(t, 3, gw.Calls())

	// user, assistant+calls, tool, assistant+calls, tool, assistant answer
	assert.Equal(t, []core.TurnKind{
		core.TurnUser,
		core.TurnAssistant, core.TurnTool,
		core.TurnAssistant, core.TurnTool,
		core.TurnAssistant,
	}, kinds(res.Conversation))
}

func TestLoop_DeterministicStructure(t *testing.T) {
	script := func() *gateway.Scripted {
		return gateway.NewScripted(
			gateway.ToolCallStep(core.ToolCallRequest{ID: "c1", Name: "get_coordinates", Arguments: map[string]any{"city": "Berlin"}}),
			gateway.FinalStep("done"),
		)
	}

	first, err := newTestLoop(t, script(), tool.NewRegistryWith(geocodeTool()), nil).
		Run(context.Background(), nil, "hi")
	require.NoError(t, err)
	second, err := newTestLoop(t, script(), tool.NewRegistryWith(geocodeTool()), nil).
		Run(context.Background(), nil, "hi")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, kinds(first.Conversation), kinds(second.Conversation))
}

func TestLoop_CapEnforcedExactly(t *testing.T) {
	gw := gateway.NewScriptedRepeating(
		gateway.ToolCallStep(core.ToolCallRequest{ID: "spin", Name: "get_coordinates", Arguments: map[string]any{"city": "Berlin"}}),
	)
	loop, err := NewLoop(Config{
		Name:         "spinner",
		Gateway:      gw,
		Registry:     tool.NewRegistryWith(geocodeTool()),
		IterationCap: 3,
	})
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), nil, "never answers")
	require.NoError(t, err)

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, ReasonIterationLimit, res.Reason)
	assert.Equal(t, ReasonIterationLimit, res.Conversation.Reason())
	// Exactly cap gateway calls, not more.
	assert.Equal(t, 3, gw.Calls())
}

func TestLoop_ToolFailureIsolated(t *testing.T) {
	failing := tool.NewFunctionTool("flaky", "always fails", nil,
		func(_ context.Context, args map[string]any) (any, error) {
			return nil, errors.New("upstream down")
		})
	gw := gateway.NewScripted(
		gateway.ToolCallStep(core.ToolCallRequest{ID: "c1", Name: "flaky"}),
		gateway.FinalStep("recovered without the tool"),
	)
	loop := newTestLoop(t, gw, tool.NewRegistryWith(failing), nil)

	res, err := loop.Run(context.Background(), nil, "try the flaky tool")
	require.NoError(t, err)

	assert.Equal(t, core.StatusDone, res.Status)

	turns := res.Conversation.AllTurns()
	require.Equal(t, core.TurnTool, turns[2].Kind)
	assert.Equal(t, core.ResultError, turns[2].ToolResult.Status)
	assert.Contains(t, turns[2].ToolResult.Error, "upstream down")
}

func TestLoop_UnknownToolFedBack(t *testing.T) {
	gw := gateway.NewScripted(
		gateway.ToolCallStep(core.ToolCallRequest{ID: "c1", Name: "no_such_tool"}),
		gateway.FinalStep("ok"),
	)
	loop := newTestLoop(t, gw, tool.NewRegistry(), nil)

	res, err := loop.Run(context.Background(), nil, "call something bogus")
	require.NoError(t, err)

	assert.Equal(t, core.StatusDone, res.Status)
	turns := res.Conversation.AllTurns()
	require.Equal(t, core.TurnTool, turns[2].Kind)
	assert.Equal(t, core.ResultError, turns[2].ToolResult.Status)
}

func TestLoop_CatalogIncludesAskHuman(t *testing.T) {
	gw := gateway.NewScripted(gateway.FinalStep("hi"))
	loop := newTestLoop(t, gw, tool.NewRegistryWith(geocodeTool()), nil)

	_, err := loop.Run(context.Background(), nil, "hello")
	require.NoError(t, err)

	reqs := gw.Requests()
	require.Len(t, reqs, 1)
	names := make([]string, len(reqs[0].Tools))
	for i, spec := range reqs[0].Tools {
		names[i] = spec.Name
	}
	assert.Contains(t, names, "get_coordinates")
	assert.Contains(t, names, tool.AskHuman)
}

// -------------------- Gateway retry --------------------

func TestLoop_RetryableErrorRetriedOnce(t *testing.T) {
	gw := gateway.NewScripted(
		gateway.ErrStep(gateway.NewError(gateway.ErrCodeRateLimited, "slow down", nil)),
		gateway.FinalStep("after retry"),
	)
	loop := newTestLoop(t, gw, nil, nil)

	res, err := loop.Run(context.Background(), nil, "hello")
	require.NoError(t, err)

	assert.Equal(t, core.StatusDone, res.Status)
	assert.Equal(t, "after retry", res.Answer)
	assert.Equal(t, 2, gw.Calls())
}

func TestLoop_GatewayFailureAfterRetryIsFatal(t *testing.T) {
	gw := gateway.NewScriptedRepeating(
		gateway.ErrStep(gateway.NewError(gateway.ErrCodeUnavailable, "down", nil)),
	)
	loop := newTestLoop(t, gw, nil, nil)

	res, err := loop.Run(context.Background(), nil, "hello")
	require.NoError(t, err)

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, ReasonGatewayFailure, res.Reason)
	var gwErr *gateway.Error
	assert.True(t, errors.As(res.Err, &gwErr))
	// One retry, then escalate.
	assert.Equal(t, 2, gw.Calls())
}

// -------------------- Suspension & resume --------------------

func TestLoop_ClarificationSuspends(t *testing.T) {
	store := checkpoint.NewInMemoryStore()
	gw := gateway.NewScripted(
		gateway.ToolCallStep(core.ToolCallRequest{
			ID:        "ask-1",
			Name:      tool.AskHuman,
			Arguments: map[string]any{"question": "which city?"},
		}),
	)
	loop := newTestLoop(t, gw, tool.NewRegistryWith(geocodeTool()), store)

	res, err := loop.Run(context.Background(), nil, "what's the weather?")
	require.NoError(t, err)

	assert.Equal(t, core.StatusAwaitingHuman, res.Status)
	assert.Equal(t, "which city?", res.Question)
	assert.NotEmpty(t, res.CheckpointToken)
	assert.Equal(t, core.StatusAwaitingHuman, res.Conversation.CurrentStatus())
	assert.Equal(t, 1, store.Len())

	// No tool executed: user + assistant turns only.
	assert.Equal(t, []core.TurnKind{core.TurnUser, core.TurnAssistant}, kinds(res.Conversation))
}

func TestLoop_ResumeContinuesToAnswer(t *testing.T) {
	store := checkpoint.NewInMemoryStore()
	gw := gateway.NewScripted(
		gateway.ToolCallStep(core.ToolCallRequest{
			ID:        "ask-1",
			Name:      tool.AskHuman,
			Arguments: map[string]any{"question": "which city?"},
		}),
		gateway.FinalStep("Berlin: 21C."),
	)
	loop := newTestLoop(t, gw, nil, store)

	suspended, err := loop.Run(context.Background(), nil, "weather please")
	require.NoError(t, err)
	require.Equal(t, core.StatusAwaitingHuman, suspended.Status)

	res, err := loop.Resume(context.Background(), suspended.CheckpointToken, "Berlin")
	require.NoError(t, err)

	assert.Equal(t, core.StatusDone, res.Status)
	assert.Equal(t, "Berlin: 21C.", res.Answer)

	// The human answer entered the history as the pending call's result.
	var answered bool
	for _, turn := range res.Conversation.AllTurns() {
		if turn.Kind == core.TurnTool && turn.ToolResult.CallID == "ask-1" {
			answered = true
			assert.Equal(t, core.ResultSuccess, turn.ToolResult.Status)
			assert.Equal(t, "Berlin", turn.ToolResult.Output)
		}
	}
	assert.True(t, answered)
}

func TestLoop_ResumeIsSingleUse(t *testing.T) {
	store := checkpoint.NewInMemoryStore()
	gw := gateway.NewScripted(
		gateway.ToolCallStep(core.ToolCallRequest{
			ID:        "ask-1",
			Name:      tool.AskHuman,
			Arguments: map[string]any{"question": "which city?"},
		}),
		gateway.FinalStep("done"),
	)
	loop := newTestLoop(t, gw, nil, store)

	suspended, err := loop.Run(context.Background(), nil, "go")
	require.NoError(t, err)

	_, err = loop.Resume(context.Background(), suspended.CheckpointToken, "Berlin")
	require.NoError(t, err)

	_, err = loop.Resume(context.Background(), suspended.CheckpointToken, "Berlin")
	assert.True(t, errors.Is(err, core.ErrStaleCheckpoint))
}

func TestLoop_AtMostOneSuspensionPerDecision(t *testing.T) {
	store := checkpoint.NewInMemoryStore()
	gw := gateway.NewScripted(
		gateway.ToolCallStep(
			core.ToolCallRequest{ID: "c1", Name: "get_coordinates", Arguments: map[string]any{"city": "Berlin"}},
			core.ToolCallRequest{ID: "ask-1", Name: tool.AskHuman, Arguments: map[string]any{"question": "first?"}},
			core.ToolCallRequest{ID: "ask-2", Name: tool.AskHuman, Arguments: map[string]any{"question": "second?"}},
			core.ToolCallRequest{ID: "c2", Name: "get_weather", Arguments: map[string]any{"lat": 1.0, "lon": 2.0}},
		),
	)
	loop := newTestLoop(t, gw, tool.NewRegistryWith(geocodeTool(), forecastTool()), store)

	res, err := loop.Run(context.Background(), nil, "ambiguous request")
	require.NoError(t, err)

	// Exactly one checkpoint, status awaiting_human regardless of k.
	assert.Equal(t, core.StatusAwaitingHuman, res.Status)
	assert.Equal(t, "first?", res.Question)
	assert.Equal(t, 1, store.Len())

	var executed, unexecuted, notes int
	for _, turn := range res.Conversation.AllTurns() {
		switch turn.Kind {
		case core.TurnTool:
			switch turn.ToolResult.CallID {
			case "c1":
				executed++
				assert.Equal(t, core.ResultSuccess, turn.ToolResult.Status)
			case "c2":
				unexecuted++
				assert.Equal(t, core.ResultError, turn.ToolResult.Status)
				assert.Contains(t, turn.ToolResult.Error, "suspended")
			case "ask-1", "ask-2":
				t.Fatalf("ask_human must never produce a tool result before resume: %+v", turn.ToolResult)
			}
		case core.TurnNote:
			notes++
			assert.Contains(t, turn.Text, "ask-2")
		}
	}
	// Calls before the suspension ran; calls after it were answered with errors.
	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, unexecuted)
	// The dropped duplicate left a warning note.
	assert.Equal(t, 1, notes)
}

func TestLoop_AskHumanDefaultQuestion(t *testing.T) {
	store := checkpoint.NewInMemoryStore()
	gw := gateway.NewScripted(
		gateway.ToolCallStep(core.ToolCallRequest{ID: "ask-1", Name: tool.AskHuman}),
	)
	loop := newTestLoop(t, gw, nil, store)

	res, err := loop.Run(context.Background(), nil, "go")
	require.NoError(t, err)

	assert.Equal(t, core.StatusAwaitingHuman, res.Status)
	assert.NotEmpty(t, res.Question)
}
