// Package openai implements gateway.Gateway using the OpenAI Chat
// Completions API (including function/tool calling). It adapts agentloop's
// normalized Request/Decision structures into the SDK's message format and
// back.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/gateway"
)

// Options configure the OpenAI gateway adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Gateway wraps the OpenAI Chat Completions API behind gateway.Gateway.
type Gateway struct {
	client *openai.Client
	opts   Options
}

// New creates a gateway using the default client (API key from environment).
func New(optFns ...func(o *Options)) *Gateway {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a gateway from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

// Decide implements gateway.Gateway.
func (g *Gateway) Decide(ctx context.Context, req gateway.Request) (gateway.Decision, error) {
	messages, err := buildMessages(req)
	if err != nil {
		return gateway.Decision{}, gateway.NewError(gateway.ErrCodeMalformedResponse, "failed to encode conversation", err)
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, spec := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        spec.Name,
					Description: openai.String(spec.Description),
					Parameters:  spec.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return gateway.Decision{}, mapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return gateway.Decision{}, gateway.NewError(gateway.ErrCodeMalformedResponse, "no choices returned", nil)
	}

	msg := resp.Choices[0].Message
	decision := gateway.Decision{Text: msg.Content}

	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return gateway.Decision{}, gateway.NewError(
					gateway.ErrCodeMalformedResponse,
					fmt.Sprintf("undecodable arguments for tool call %s", tc.Function.Name),
					err,
				)
			}
		}
		decision.ToolCalls = append(decision.ToolCalls, core.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	decision.Usage = &gateway.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	return decision, nil
}

// buildMessages converts normalized turns into OpenAI chat messages. The
// system instructions lead; tool results follow the assistant turn that
// requested them, which History ordering already guarantees.
func buildMessages(req gateway.Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, t := range req.Conversation {
		switch t.Kind {
		case core.TurnUser:
			messages = append(messages, openai.UserMessage(t.Text))
		case core.TurnAssistant:
			if !t.HasToolCalls() {
				messages = append(messages, openai.AssistantMessage(t.Text))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(t.ToolCalls))
			for _, tc := range t.ToolCalls {
				argsJSON, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, err
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.TurnTool:
			if t.ToolResult == nil {
				continue
			}
			messages = append(messages, openai.ToolMessage(resultText(t.ToolResult), t.ToolResult.CallID))
		case core.TurnNote:
			// Notes are orchestration annotations; surface them as user
			// context so routing models can see them.
			messages = append(messages, openai.UserMessage("[note] "+t.Text))
		}
	}
	return messages, nil
}

// resultText renders a tool result for the model: the error message for
// failures, the output (JSON encoded when structured) for successes.
func resultText(r *core.ToolResult) string {
	if r.Status == core.ResultError {
		return "Error: " + r.Error
	}
	if s, ok := r.Output.(string); ok {
		return s
	}
	b, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}
	return string(b)
}

// mapAPIError folds SDK errors into the three gateway failure codes.
func mapAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return gateway.NewError(gateway.ErrCodeRateLimited, "openai rate limited", err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return gateway.NewError(gateway.ErrCodeUnavailable, "openai server error", err)
		}
	}
	return gateway.NewError(gateway.ErrCodeUnavailable, "openai api error", err)
}
