// Package fastgpt is a typed client for the FastGPT OpenAI-compatible chat API.
//
// Requests and responses reuse go-openai's wire types. FastGPT extends them
// with chatId/variables on the request, responseData on the response and
// named SSE events on streams; those extensions are modelled here.
package fastgpt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/aihub/agentdesk/internal/domain"
)

// Target identifies the FastGPT app a request is sent to.
type Target struct {
	BaseURL string
	APIKey  string
	AppID   string
}

func (t Target) endpoint(path string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(t.BaseURL), "/")
	if base == "" {
		return "", fmt.Errorf("fastgpt: base url is empty")
	}
	return base + path, nil
}

// ChatRequest is one chat completion call.
type ChatRequest struct {
	// ChatID lets FastGPT keep the conversation history server side.
	ChatID string
	// ResponseChatItemID names the assistant reply so feedback can target it.
	ResponseChatItemID string
	Messages           []openai.ChatCompletionMessage
	Variables          map[string]any
	Detail             bool
}

type chatBody struct {
	ChatID             string                         `json:"chatId,omitempty"`
	ResponseChatItemID string                         `json:"responseChatItemId,omitempty"`
	Stream             bool                           `json:"stream"`
	Detail             bool                           `json:"detail"`
	Variables          map[string]any                 `json:"variables,omitempty"`
	Messages           []openai.ChatCompletionMessage `json:"messages"`
}

// NodeResponse is one workflow node entry of FastGPT's responseData.
type NodeResponse struct {
	NodeID      string  `json:"nodeId,omitempty"`
	ModuleName  string  `json:"moduleName"`
	ModuleType  string  `json:"moduleType,omitempty"`
	RunningTime float64 `json:"runningTime,omitempty"`
	TotalPoints float64 `json:"totalPoints,omitempty"`
}

// NodeStatus is the payload of a flowNodeStatus stream event.
type NodeStatus struct {
	Status string `json:"status"`
	Name   string `json:"name"`
}

// ChatResponse is a finished completion.
type ChatResponse struct {
	Completion   openai.ChatCompletionResponse `json:"completion"`
	ResponseData []NodeResponse                `json:"responseData,omitempty"`
	Interactive  json.RawMessage               `json:"interactive,omitempty"`
}

// Content returns the text of the first choice.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Completion.Choices) == 0 {
		return ""
	}
	msg := r.Completion.Choices[0].Message
	if msg.Content != "" || len(msg.MultiContent) == 0 {
		return msg.Content
	}
	var b strings.Builder
	for _, p := range msg.MultiContent {
		if p.Type == openai.ChatMessagePartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Steps converts responseData into processing steps for message metadata.
func (r *ChatResponse) Steps() []domain.ProcessingStep {
	if r == nil || len(r.ResponseData) == 0 {
		return nil
	}
	steps := make([]domain.ProcessingStep, 0, len(r.ResponseData))
	for _, n := range r.ResponseData {
		steps = append(steps, domain.ProcessingStep{
			Name:        n.ModuleName,
			ModuleType:  n.ModuleType,
			Status:      "done",
			RunningTime: n.RunningTime,
		})
	}
	return steps
}

// EventType names a FastGPT stream event.
type EventType string

const (
	EventAnswer         EventType = "answer"
	EventFastAnswer     EventType = "fastAnswer"
	EventFlowNodeStatus EventType = "flowNodeStatus"
	EventFlowResponses  EventType = "flowResponses"
	EventInteractive    EventType = "interactive"
	EventError          EventType = "error"
	EventDone           EventType = "done"
)

// StreamEvent is one decoded stream event. The channel returned by Stream
// always ends with exactly one EventDone or EventError.
type StreamEvent struct {
	Type         EventType       `json:"type"`
	Content      string          `json:"content,omitempty"`
	Node         *NodeStatus     `json:"node,omitempty"`
	Interactive  json.RawMessage `json:"interactive,omitempty"`
	ResponseData []NodeResponse  `json:"responseData,omitempty"`
	Error        string          `json:"error,omitempty"`
	Response     *ChatResponse   `json:"response,omitempty"`
}

// FeedbackRequest rates one assistant reply.
type FeedbackRequest struct {
	ChatID string
	DataID string
	Kind   domain.FeedbackKind
	Note   string
}

// Client is the FastGPT API surface used by the chat runner.
type Client interface {
	Complete(ctx context.Context, t Target, req ChatRequest) (*ChatResponse, error)
	Stream(ctx context.Context, t Target, req ChatRequest) (<-chan StreamEvent, error)
	Feedback(ctx context.Context, t Target, req FeedbackRequest) error
}

// APIError is a non-2xx answer from FastGPT.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fastgpt: status %d: %s", e.Status, e.Message)
}

// parseAPIError extracts a message from the error body shapes FastGPT and
// OpenAI-compatible gateways return.
func parseAPIError(status int, body []byte) *APIError {
	var shape struct {
		Message    string `json:"message"`
		StatusText string `json:"statusText"`
		Error      *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &shape) == nil {
		switch {
		case shape.Error != nil && shape.Error.Message != "":
			msg = shape.Error.Message
		case shape.Message != "":
			msg = shape.Message
		case shape.StatusText != "":
			msg = shape.StatusText
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
	}
	if msg == "" {
		msg = "empty response"
	}
	return &APIError{Status: status, Message: msg}
}
