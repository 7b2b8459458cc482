package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence
// of responses. Useful for testing multi-turn tool-calling interactions.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []*ChatResponse
	Err       error
	// CallCount tracks how many times Chat has been called.
	CallCount int
	// Requests records each request for inspection by tests.
	Requests []ChatRequest
	// Loop repeats the last response forever once the script runs out.
	Loop bool
}

// NewScriptedMockProvider creates a new ScriptedMockProvider.
func NewScriptedMockProvider(responses ...*ChatResponse) *ScriptedMockProvider {
	return &ScriptedMockProvider{
		Responses: responses,
	}
}

// TextResponse builds a final-answer scripted response.
func TextResponse(content string) *ChatResponse {
	return &ChatResponse{
		Content: content,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}
}

// ToolCallResponse builds a scripted response requesting the given operations.
func ToolCallResponse(calls ...ToolCall) *ChatResponse {
	return &ChatResponse{
		ToolCalls: calls,
		Usage:     Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}
}

// Call builds a single tool call with a JSON argument payload.
func Call(id, name, argumentsJSON string) ToolCall {
	return ToolCall{
		ID:   id,
		Type: ToolTypeFunction,
		Function: FunctionCall{
			Name:      name,
			Arguments: argumentsJSON,
		},
	}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}

	if len(s.Responses) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	resp := s.Responses[0]
	if len(s.Responses) > 1 || !s.Loop {
		s.Responses = s.Responses[1:]
	}
	return resp, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedMockProvider) AddResponse(resp *ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, resp)
}
