package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAI(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
	})
	if err != nil {
		t.Fatalf("NewOpenAI() error: %v", err)
	}
	return p
}

func TestNewOpenAI_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewGroq("", "some-model"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured from NewGroq, got %v", err)
	}
}

func TestComplete_RequestShape(t *testing.T) {
	var got oaiRequest
	var auth string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{
				Message:      oaiMessage{Role: "assistant", Content: "hello"},
				FinishReason: "stop",
			}},
		})
	})

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "you are a travel advisor"},
			{Role: RoleUser, Content: "hi"},
		},
		Tools: []ToolDefinition{{
			Type:     "function",
			Function: FunctionDef{Name: "weather_lookup"},
		}},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if auth != "Bearer test-key" {
		t.Errorf("unexpected authorization header: %q", auth)
	}
	if got.Model != "test-model" {
		t.Errorf("expected config default model, got %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != "weather_lookup" {
		t.Errorf("unexpected tools: %+v", got.Tools)
	}
	if got.MaxTokens != 256 {
		t.Errorf("expected max_tokens 256, got %d", got.MaxTokens)
	}
	if resp.Message.Content != "hello" || resp.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestComplete_ToolCalls(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{
				Message: oaiMessage{
					Role: "assistant",
					ToolCalls: []oaiToolCall{{
						ID:   "call_abc",
						Type: "function",
						Function: oaiFunctionCall{
							Name:      "flight_search",
							Arguments: `{"origin":"JFK","destination":"LHR"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		})
	})

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "find flights"}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("expected finish reason tool_calls, got %q", resp.FinishReason)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Function.Name != "flight_search" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if tc.Function.Arguments != `{"origin":"JFK","destination":"LHR"}` {
		t.Errorf("arguments not passed through raw: %q", tc.Function.Arguments)
	}
}

func TestComplete_ToolResultRoundTrip(t *testing.T) {
	var got oaiRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{
				Message:      oaiMessage{Role: "assistant", Content: "done"},
				FinishReason: "stop",
			}},
		})
	})

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "find flights"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{
				ID: "call_abc", Type: "function",
				Function: FunctionCall{Name: "flight_search", Arguments: `{}`},
			}}},
			{Role: RoleTool, ToolCallID: "call_abc", Name: "flight_search", Content: `{"flights":[]}`},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(got.Messages))
	}
	assistant := got.Messages[1]
	if assistant.Content != nil {
		t.Errorf("assistant tool call message should have null content, got %v", assistant.Content)
	}
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != "call_abc" {
		t.Errorf("tool calls not encoded: %+v", assistant.ToolCalls)
	}
	toolMsg := got.Messages[2]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_abc" || toolMsg.Name != "flight_search" {
		t.Errorf("tool result not encoded: %+v", toolMsg)
	}
}

func TestComplete_APIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"message": "rate limited",
				"type":    "rate_limit_error",
			},
		})
	})

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error from API error response")
	}

	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %T: %v", err, err)
	}
	if invErr.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", invErr.Provider)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(oaiResponse{})
	})

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestComplete_ModelOverride(t *testing.T) {
	var got oaiRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{
				Message:      oaiMessage{Role: "assistant", Content: "ok"},
				FinishReason: "stop",
			}},
		})
	})

	_, err := p.Complete(context.Background(), CompletionRequest{
		Model:    "override-model",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got.Model != "override-model" {
		t.Errorf("request model should win over config default, got %q", got.Model)
	}
}
