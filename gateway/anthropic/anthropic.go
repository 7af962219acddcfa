// Package anthropic implements gateway.Gateway using the Anthropic Messages
// API (including tool use).
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/gateway"
	"github.com/agentloop/agentloop/internal/util"
	"github.com/agentloop/agentloop/tool"
)

// Options configures the Anthropic gateway adapter (model id, temperature,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Gateway wraps the Anthropic Messages API behind gateway.Gateway.
type Gateway struct {
	client *anthropic.Client
	opts   Options
}

// New creates a gateway using the official client.
func New(optFns ...func(o *Options)) *Gateway {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Gateway{client: &client, opts: opts}
}

// NewFromClient creates a gateway from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Gateway {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

func defaults() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Decide implements gateway.Gateway.
func (g *Gateway) Decide(ctx context.Context, req gateway.Request) (gateway.Decision, error) {
	params := anthropic.MessageNewParams{
		Model:       g.opts.Model,
		Messages:    buildMessages(req.Conversation),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(g.opts.Temperature),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return gateway.Decision{}, mapAPIError(err)
	}

	var decision gateway.Decision
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			decision.Text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args, err := decodeInput(toolBlock.Input)
			if err != nil {
				return gateway.Decision{}, gateway.NewError(
					gateway.ErrCodeMalformedResponse,
					"undecodable tool_use input for "+toolBlock.Name,
					err,
				)
			}
			decision.ToolCalls = append(decision.ToolCalls, core.ToolCallRequest{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}

	decision.Usage = &gateway.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}

	return decision, nil
}

// buildMessages converts normalized turns to Anthropic message params. Tool
// results become tool_result blocks in user messages, per the Messages API
// convention.
func buildMessages(turns []core.Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, t := range turns {
		switch t.Kind {
		case core.TurnUser:
			if t.Text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
			}
		case core.TurnAssistant:
			var content []anthropic.ContentBlockParamUnion
			if t.Text != "" {
				content = append(content, anthropic.NewTextBlock(t.Text))
			}
			for _, tc := range t.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.TurnTool:
			if t.ToolResult == nil {
				continue
			}
			r := t.ToolResult
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(r.CallID, resultText(r), r.Status == core.ResultError),
			))
		case core.TurnNote:
			// Notes are orchestration annotations; surface them as user
			// context so routing models can see them.
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock("[note] "+t.Text)))
		}
	}

	return messages
}

func resultText(r *core.ToolResult) string {
	if r.Status == core.ResultError {
		return r.Error
	}
	if s, ok := r.Output.(string); ok {
		return s
	}
	b, err := json.Marshal(r.Output)
	if err != nil {
		return "unserializable tool output"
	}
	return string(b)
}

// decodeInput converts a tool_use input payload into an argument map,
// tolerating either raw JSON or an already-decoded value.
func decodeInput(input any) (map[string]any, error) {
	if input == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	args := map[string]any{}
	if len(b) == 0 || string(b) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(b, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// buildTools converts the tool catalog to Anthropic tool params.
func buildTools(specs []tool.Spec) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(specs))

	for i, spec := range specs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if spec.Parameters != nil {
			if properties, exists := spec.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			inputSchema.Required = util.RequiredFields(spec.Parameters)
		}
		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
	}

	return anthropicTools
}

// mapAPIError folds SDK errors into the three gateway failure codes.
func mapAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return gateway.NewError(gateway.ErrCodeRateLimited, "anthropic rate limited", err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return gateway.NewError(gateway.ErrCodeUnavailable, "anthropic server error", err)
		}
	}
	return gateway.NewError(gateway.ErrCodeUnavailable, "anthropic api error", err)
}
