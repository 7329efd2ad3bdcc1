package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic Messages adapter.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	APIKey string
	// Model is the default model to use when CompletionRequest.Model is empty.
	Model string
	// BaseURL overrides the API endpoint, mainly for test servers.
	BaseURL string
}

// anthropicProvider implements Provider using the Anthropic Messages API.
type anthropicProvider struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropic returns a Provider backed by the Anthropic Messages API.
// It fails with ErrNotConfigured when the API key is empty.
func NewAnthropic(cfg AnthropicConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrNotConfigured)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

// Complete translates the request into a Messages call and maps the response
// blocks back into the common message shape.
func (p *anthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.complete(ctx, req)
	if err != nil {
		return nil, &InvocationError{Provider: "anthropic", Err: err}
	}
	return resp, nil
}

func (p *anthropicProvider) complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})

		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(
					tc.ID, json.RawMessage(tc.Function.Arguments), tc.Function.Name,
				))
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		case RoleTool:
			// Tool results travel as user-role content blocks in this API.
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))

		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}

	for _, t := range req.Tools {
		schema, err := toolInputSchema(t.Function.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w", t.Function.Name, err)
		}
		u := anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
		if u.OfTool != nil && t.Function.Description != "" {
			u.OfTool.Description = anthropic.String(t.Function.Description)
		}
		params.Tools = append(params.Tools, u)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages.new: %w", err)
	}

	msg := Message{Role: RoleAssistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}

	finish := "stop"
	if string(resp.StopReason) == "tool_use" {
		finish = "tool_calls"
	}

	return &CompletionResponse{
		Message:      msg,
		FinishReason: finish,
		Usage: TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// toolInputSchema converts a JSON Schema object into the SDK's input schema
// param, passing the schema through untouched.
func toolInputSchema(schema interface{}) (anthropic.ToolInputSchemaParam, error) {
	if schema == nil {
		return anthropic.ToolInputSchemaParam{}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return anthropic.ToolInputSchemaParam{ExtraFields: m}, nil
}
