// Package agent runs the travel advisor persona against a model provider,
// feeding it recalled memory context and recording each finished exchange
// back into memory.
//
// The adapter is credulous: recalled memories go into the system prompt
// unfiltered and unattributed, exactly as a naive memory-augmented agent
// would do.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/probelabs/memprobe/internal/probe/llm"
	"github.com/probelabs/memprobe/internal/probe/memory"
	"github.com/probelabs/memprobe/internal/probe/tools"
)

const (
	// maxToolCallRounds bounds the model/tool round-trips per turn.
	maxToolCallRounds = 8

	// defaultMaxMemories caps how many recalled entries go into the prompt.
	defaultMaxMemories = 10
)

// Advisor is the memory-augmented travel advisor under test.
type Advisor struct {
	provider    llm.Provider
	memory      memory.Recaller
	tools       *tools.Registry
	model       string
	maxTokens   int
	maxMemories int
	logger      *slog.Logger
}

// Config configures an Advisor.
type Config struct {
	// Provider is the model backend. Required.
	Provider llm.Provider
	// Memory is the recall backend. Nil gets the no-op recaller, giving a
	// memory-disabled control agent.
	Memory memory.Recaller
	// Tools is the tool registry. Nil gets the standard travel tools.
	Tools *tools.Registry
	// Model overrides the provider's default model when non-empty.
	Model string
	// MaxTokens caps each completion. Zero leaves it to the provider.
	MaxTokens int
	// MaxMemories caps recalled entries per prompt. Zero means the default.
	MaxMemories int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates an Advisor.
func New(cfg Config) (*Advisor, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("agent: provider is required")
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.NewNullRecaller(cfg.Logger)
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewTravel()
	}
	if cfg.MaxMemories <= 0 {
		cfg.MaxMemories = defaultMaxMemories
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Advisor{
		provider:    cfg.Provider,
		memory:      cfg.Memory,
		tools:       cfg.Tools,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		maxMemories: cfg.MaxMemories,
		logger:      cfg.Logger,
	}, nil
}

// ProcessWithMemory executes one full turn: recall context, run the model
// with tools until it produces a plain text reply, then record the exchange.
// Provider errors carry through unchanged and nothing is recorded for the
// failed turn.
func (a *Advisor) ProcessWithMemory(ctx context.Context, userID, appName, sessionID, message string) (string, error) {
	entries, err := a.memory.RetrieveContext(ctx, userID, appName, a.maxMemories)
	if err != nil {
		return "", fmt.Errorf("agent: retrieve context: %w", err)
	}

	systemPrompt := personaPrompt
	if block := renderMemoryBlock(entries); block != "" {
		systemPrompt += "\n\n" + block
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: message},
	}
	toolDefs := a.tools.Definitions()

	a.logger.Debug("agent: starting turn",
		"user_id", userID,
		"app_name", appName,
		"session_id", sessionID,
		"recalled_memories", len(entries),
	)

	var reply string
	totalToolCalls := 0
	for round := 0; ; round++ {
		if round >= maxToolCallRounds {
			return "", fmt.Errorf("agent: exceeded maximum tool call rounds (%d)", maxToolCallRounds)
		}

		resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
			Model:     a.model,
			Messages:  messages,
			Tools:     toolDefs,
			MaxTokens: a.maxTokens,
		})
		if err != nil {
			return "", err
		}

		messages = append(messages, resp.Message)

		if resp.FinishReason != "tool_calls" || len(resp.Message.ToolCalls) == 0 {
			reply = resp.Message.Content
			break
		}

		for _, tc := range resp.Message.ToolCalls {
			totalToolCalls++
			result, err := a.executeToolCall(ctx, tc)
			toolResultMsg := llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
			}
			if err != nil {
				toolResultMsg.Content = fmt.Sprintf("error: %s", err)
			} else {
				toolResultMsg.Content = result
			}
			messages = append(messages, toolResultMsg)
		}
	}

	if err := a.memory.RecordTurn(ctx, userID, appName, sessionID, message, reply); err != nil {
		return "", fmt.Errorf("agent: record turn: %w", err)
	}

	a.logger.Debug("agent: finished turn",
		"user_id", userID,
		"session_id", sessionID,
		"tool_calls", totalToolCalls,
		"reply_len", len(reply),
	)
	return reply, nil
}

// executeToolCall decodes the arguments and dispatches to the registry.
func (a *Advisor) executeToolCall(ctx context.Context, tc llm.ToolCall) (string, error) {
	tool := a.tools.Get(tc.Function.Name)
	if tool == nil {
		return "", fmt.Errorf("unknown tool: %s", tc.Function.Name)
	}

	var args map[string]interface{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	a.logger.Debug("agent: executing tool", "tool", tc.Function.Name)
	return tool.Execute(ctx, args)
}
