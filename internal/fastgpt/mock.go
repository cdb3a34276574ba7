package fastgpt

import (
	"context"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// MockClient is a test double for Client.
type MockClient struct {
	CompleteFunc func(ctx context.Context, t Target, req ChatRequest) (*ChatResponse, error)
	StreamFunc   func(ctx context.Context, t Target, req ChatRequest) (<-chan StreamEvent, error)
	FeedbackFunc func(ctx context.Context, t Target, req FeedbackRequest) error

	mu        sync.Mutex
	Requests  []ChatRequest
	Feedbacks []FeedbackRequest
}

var _ Client = (*MockClient)(nil)

// TextResponse builds a ChatResponse whose first choice is content.
func TextResponse(content string) *ChatResponse {
	return &ChatResponse{Completion: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
		}},
	}}
}

// Calls returns a copy of the chat requests seen so far.
func (m *MockClient) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.Requests...)
}

func (m *MockClient) Complete(ctx context.Context, t Target, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, t, req)
	}
	return TextResponse("mock response"), nil
}

func (m *MockClient) Stream(ctx context.Context, t Target, req ChatRequest) (<-chan StreamEvent, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, t, req)
	}
	ch := make(chan StreamEvent, 3)
	ch <- StreamEvent{Type: EventAnswer, Content: "mock "}
	ch <- StreamEvent{Type: EventAnswer, Content: "stream"}
	ch <- StreamEvent{Type: EventDone, Response: TextResponse("mock stream")}
	close(ch)
	return ch, nil
}

func (m *MockClient) Feedback(ctx context.Context, t Target, req FeedbackRequest) error {
	m.mu.Lock()
	m.Feedbacks = append(m.Feedbacks, req)
	m.mu.Unlock()
	if m.FeedbackFunc != nil {
		return m.FeedbackFunc(ctx, t, req)
	}
	return nil
}
