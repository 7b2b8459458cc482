package llm

import (
	"context"

	terrors "github.com/tom-assistant/tom/pkg/errors"
)

// StaticMockProvider answers every chat call with the same response. It is
// the single-answer counterpart of ScriptedMockProvider for tests that only
// exercise one decision, such as a triage pass.
type StaticMockProvider struct {
	Response  *ChatResponse
	Err       error
	ChatFunc  func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	CallCount int
}

func (m *StaticMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.CallCount++
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Response != nil {
		return m.Response, nil
	}
	return TextResponse(""), nil
}

// FailingMockProvider fails every chat call. A nil Err yields a recoverable
// gateway error, so retry paths behave as they would during a real outage.
type FailingMockProvider struct {
	Err       error
	CallCount int
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.CallCount++
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, terrors.New(terrors.CodeLLMError, "gateway unavailable", nil).
		WithRecoverable(true)
}
