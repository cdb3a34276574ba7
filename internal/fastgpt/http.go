package fastgpt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sashabaranov/go-openai"

	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/logging"
)

const (
	completionsPath = "/v1/chat/completions"
	feedbackPath    = "/core/chat/feedback/updateUserFeedback"

	maxErrorBody = 64 << 10
	maxEventSize = 4 << 20
)

// Observer receives the timing of every upstream call.
type Observer interface {
	ObserveUpstream(op string, d time.Duration, err error)
}

// Options configures an HTTPClient.
type Options struct {
	// Timeout bounds a non-streaming call and the wait for response headers
	// of a streaming call.
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
	Logger     *logging.Logger
	Observers  []Observer
}

// HTTPClient talks to FastGPT over HTTP. 5xx and 429 answers are retried by
// go-retryablehttp before surfacing as *APIError.
type HTTPClient struct {
	http      *retryablehttp.Client
	timeout   time.Duration
	log       *logging.Logger
	observers []Observer
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client from opts.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.MaxRetries
	rc.RetryWaitMin = opts.RetryWait
	rc.RetryWaitMax = 10 * opts.RetryWait
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if t, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
		t.ResponseHeaderTimeout = opts.Timeout
	}
	if opts.Logger != nil {
		rc.Logger = opts.Logger.Sub("fastgpt.http")
	} else {
		rc.Logger = nil
	}

	log := opts.Logger
	if log == nil {
		log = logging.New(io.Discard, "silent")
	}
	return &HTTPClient{
		http:      rc,
		timeout:   opts.Timeout,
		log:       log.Sub("fastgpt"),
		observers: opts.Observers,
	}
}

func (c *HTTPClient) observe(op string, start time.Time, err error) {
	d := time.Since(start)
	for _, o := range c.observers {
		o.ObserveUpstream(op, d, err)
	}
}

func (c *HTTPClient) post(ctx context.Context, t Target, path string, body any, accept string) (*http.Response, error) {
	url, err := t.endpoint(path)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("fastgpt: encoding request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, fmt.Errorf("fastgpt: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fastgpt: request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return resp, nil
}

// Complete sends a non-streaming chat completion.
func (c *HTTPClient) Complete(ctx context.Context, t Target, req ChatRequest) (out *ChatResponse, err error) {
	start := time.Now()
	defer func() { c.observe("fastgpt.completion", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, t, completionsPath, chatBody{
		ChatID:             req.ChatID,
		ResponseChatItemID: req.ResponseChatItemID,
		Detail:             req.Detail,
		Variables:          req.Variables,
		Messages:           req.Messages,
	}, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fastgpt: reading response: %w", err)
	}

	out = &ChatResponse{}
	if err := json.Unmarshal(data, &out.Completion); err != nil {
		return nil, fmt.Errorf("fastgpt: decoding response: %w", err)
	}
	var ext struct {
		ResponseData []NodeResponse `json:"responseData"`
	}
	if err := json.Unmarshal(data, &ext); err == nil {
		out.ResponseData = ext.ResponseData
	}
	c.log.Debug().
		Str("chatId", req.ChatID).
		Int("nodes", len(out.ResponseData)).
		Dur("elapsed", time.Since(start)).
		Msg("completion finished")
	return out, nil
}

// Stream sends a streaming chat completion. Connection and HTTP errors are
// returned directly; errors after the stream started arrive as EventError.
func (c *HTTPClient) Stream(ctx context.Context, t Target, req ChatRequest) (<-chan StreamEvent, error) {
	start := time.Now()
	resp, err := c.post(ctx, t, completionsPath, chatBody{
		ChatID:             req.ChatID,
		ResponseChatItemID: req.ResponseChatItemID,
		Stream:             true,
		Detail:             req.Detail,
		Variables:          req.Variables,
		Messages:           req.Messages,
	}, "text/event-stream")
	if err != nil {
		c.observe("fastgpt.stream", start, err)
		return nil, err
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		final, err := readStream(ctx, resp.Body, ch)
		c.observe("fastgpt.stream", start, err)
		if err != nil {
			send(ctx, ch, StreamEvent{Type: EventError, Error: err.Error()})
			return
		}
		send(ctx, ch, StreamEvent{Type: EventDone, Response: final})
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// readStream decodes SSE frames until [DONE] or EOF and returns the
// aggregated response.
func readStream(ctx context.Context, r io.Reader, ch chan<- StreamEvent) (*ChatResponse, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)

	var (
		content strings.Builder
		final   = &ChatResponse{}
		event   string
		data    bytes.Buffer
	)

	// dispatch handles one complete frame; it reports whether to stop.
	dispatch := func() (bool, error) {
		defer func() {
			event = ""
			data.Reset()
		}()
		if data.Len() == 0 {
			return false, nil
		}
		payload := data.Bytes()
		if string(payload) == "[DONE]" {
			return true, nil
		}

		switch EventType(event) {
		case "", EventAnswer, EventFastAnswer:
			var chunk openai.ChatCompletionStreamResponse
			if err := json.Unmarshal(payload, &chunk); err != nil {
				return false, nil
			}
			if final.Completion.ID == "" {
				final.Completion.ID = chunk.ID
				final.Completion.Model = chunk.Model
				final.Completion.Created = chunk.Created
			}
			if chunk.Usage != nil {
				final.Completion.Usage = *chunk.Usage
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				content.WriteString(choice.Delta.Content)
				typ := EventType(event)
				if typ == "" {
					typ = EventAnswer
				}
				if !send(ctx, ch, StreamEvent{Type: typ, Content: choice.Delta.Content}) {
					return true, ctx.Err()
				}
			}
		case EventFlowNodeStatus:
			var st NodeStatus
			if err := json.Unmarshal(payload, &st); err != nil {
				return false, nil
			}
			if !send(ctx, ch, StreamEvent{Type: EventFlowNodeStatus, Node: &st}) {
				return true, ctx.Err()
			}
		case EventFlowResponses:
			var nodes []NodeResponse
			if err := json.Unmarshal(payload, &nodes); err != nil {
				return false, nil
			}
			final.ResponseData = append(final.ResponseData, nodes...)
			if !send(ctx, ch, StreamEvent{Type: EventFlowResponses, ResponseData: nodes}) {
				return true, ctx.Err()
			}
		case EventInteractive:
			var wrapped struct {
				Interactive json.RawMessage `json:"interactive"`
			}
			raw := json.RawMessage(bytes.Clone(payload))
			if json.Unmarshal(payload, &wrapped) == nil && len(wrapped.Interactive) > 0 {
				raw = wrapped.Interactive
			}
			final.Interactive = raw
			if !send(ctx, ch, StreamEvent{Type: EventInteractive, Interactive: raw}) {
				return true, ctx.Err()
			}
		case EventError:
			return true, parseAPIError(http.StatusOK, payload)
		}
		return false, nil
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			stop, err := dispatch()
			if err != nil || stop {
				return finish(final, &content), err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return finish(final, &content), ctx.Err()
		}
		return finish(final, &content), fmt.Errorf("fastgpt: reading stream: %w", err)
	}
	if _, err := dispatch(); err != nil {
		return finish(final, &content), err
	}
	return finish(final, &content), nil
}

func finish(final *ChatResponse, content *strings.Builder) *ChatResponse {
	final.Completion.Choices = []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: content.String(),
		},
		FinishReason: openai.FinishReasonStop,
	}}
	return final
}

// Feedback records or clears a like/dislike on an assistant reply.
func (c *HTTPClient) Feedback(ctx context.Context, t Target, req FeedbackRequest) (err error) {
	start := time.Now()
	defer func() { c.observe("fastgpt.feedback", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]any{
		"appId":  t.AppID,
		"chatId": req.ChatID,
		"dataId": req.DataID,
	}
	switch req.Kind {
	case domain.FeedbackLiked:
		body["userGoodFeedback"] = feedbackText(req.Note)
	case domain.FeedbackDisliked:
		body["userBadFeedback"] = feedbackText(req.Note)
	}

	resp, err := c.post(ctx, t, feedbackPath, body, "application/json")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func feedbackText(note string) string {
	if strings.TrimSpace(note) == "" {
		return "yes"
	}
	return note
}
