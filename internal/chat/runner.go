// Package chat runs chat turns against FastGPT agents and records them in the
// session store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/aihub/agentdesk/internal/agents"
	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/fastgpt"
	"github.com/aihub/agentdesk/internal/hooks"
	"github.com/aihub/agentdesk/internal/logging"
	"github.com/aihub/agentdesk/internal/store"
)

var (
	ErrEmptyMessage  = errors.New("chat: message is empty")
	ErrCancelled     = errors.New("chat: request cancelled")
	ErrAgentMismatch = errors.New("chat: session belongs to another agent")
	ErrNotAssistant  = errors.New("chat: feedback is only accepted on assistant messages")
)

// SendRequest is one user turn.
type SendRequest struct {
	// ClientKey identifies the caller; a new request with the same key
	// cancels the one in flight. Defaults to the session id.
	ClientKey string               `json:"clientKey,omitempty"`
	AgentID   string               `json:"agentId,omitempty"`
	SessionID string               `json:"sessionId,omitempty"`
	Content   string               `json:"content"`
	Parts     []domain.ContentPart `json:"parts,omitempty"`
	Files     []domain.FileRef     `json:"files,omitempty"`
	Variables map[string]string    `json:"variables,omitempty"`
	Stream    bool                 `json:"stream,omitempty"`
}

// SendResult is the outcome of a turn.
type SendResult struct {
	SessionID string         `json:"sessionId"`
	AgentID   string         `json:"agentId"`
	User      domain.Message `json:"user"`
	Reply     domain.Message `json:"reply"`
	Duration  time.Duration  `json:"duration"`
}

// StreamCallback receives stream events as they arrive.
type StreamCallback func(ev fastgpt.StreamEvent)

// Tracker records the duration of a chat turn.
type Tracker interface {
	Record(name string, d time.Duration, failed bool)
}

type inflight struct {
	id      uint64
	agentID string
	cancel  context.CancelFunc
}

// Runner orchestrates chat turns.
type Runner struct {
	agents   *agents.Registry
	sessions store.ChatStore
	client   fastgpt.Client
	hooks    *hooks.Manager
	tracker  Tracker
	log      *logging.Logger

	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflight
}

// NewRunner creates a chat runner.
func NewRunner(reg *agents.Registry, sessions store.ChatStore, client fastgpt.Client, hm *hooks.Manager, log *logging.Logger) *Runner {
	return &Runner{
		agents:   reg,
		sessions: sessions,
		client:   client,
		hooks:    hm,
		log:      log.Sub("chat"),
		inflight: make(map[string]inflight),
	}
}

// SetTracker records turn durations as the "chat.send" sample.
func (r *Runner) SetTracker(t Tracker) {
	r.tracker = t
}

func (r *Runner) emit(ctx context.Context, event string, data map[string]any) {
	if r.hooks != nil {
		r.hooks.Emit(ctx, event, data)
	}
}

// begin registers a cancellable request under key, cancelling any request
// already running for it.
func (r *Runner) begin(parent context.Context, key, agentID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	if prev, ok := r.inflight[key]; ok {
		prev.cancel()
		r.log.Info().
			Str("client", key).
			Str("previousAgent", prev.agentID).
			Str("agent", agentID).
			Msg("cancelled previous request")
	}
	r.seq++
	id := r.seq
	r.inflight[key] = inflight{id: id, agentID: agentID, cancel: cancel}
	r.mu.Unlock()

	return ctx, func() {
		cancel()
		r.mu.Lock()
		if cur, ok := r.inflight[key]; ok && cur.id == id {
			delete(r.inflight, key)
		}
		r.mu.Unlock()
	}
}

// Cancel aborts the request in flight for clientKey and reports whether there
// was one.
func (r *Runner) Cancel(clientKey string) bool {
	r.mu.Lock()
	cur, ok := r.inflight[clientKey]
	if ok {
		delete(r.inflight, clientKey)
	}
	r.mu.Unlock()
	if ok {
		cur.cancel()
		r.emit(context.Background(), hooks.EventChatCancelled, map[string]any{
			"clientKey": clientKey,
			"agentId":   cur.agentID,
		})
	}
	return ok
}

// InFlight returns the number of running requests.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

func (r *Runner) resolveAgent(req SendRequest, sess *domain.ChatSession) (*domain.Agent, error) {
	id := req.AgentID
	if id == "" && sess != nil {
		id = sess.AgentID
	}
	if id == "" {
		return r.agents.Selected()
	}
	return r.agents.Get(id)
}

func (r *Runner) resolveVariables(a *domain.Agent, override map[string]string) (map[string]string, error) {
	if len(override) == 0 {
		clean, issues := agents.ValidateVariables(a.GlobalVariables, r.agents.Variables(a.ID))
		if len(issues) > 0 {
			return nil, &agents.VariablesError{Issues: issues}
		}
		return clean, nil
	}
	merged := r.agents.Variables(a.ID)
	for k, v := range override {
		merged[k] = v
	}
	return r.agents.SaveVariables(a.ID, merged)
}

// Send runs one turn: it persists the user message, calls FastGPT and
// persists the reply. With req.Stream set, cb receives every stream event.
func (r *Runner) Send(ctx context.Context, req SendRequest, cb StreamCallback) (res *SendResult, err error) {
	start := time.Now()
	if strings.TrimSpace(req.Content) == "" && len(req.Parts) == 0 {
		return nil, ErrEmptyMessage
	}
	defer func() {
		if r.tracker != nil {
			r.tracker.Record("chat.send", time.Since(start), err != nil && !errors.Is(err, ErrCancelled))
		}
	}()

	var sess *domain.ChatSession
	if req.SessionID != "" {
		sess, err = r.sessions.GetChatSession(req.SessionID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	agent, err := r.resolveAgent(req, sess)
	if err != nil {
		return nil, fmt.Errorf("resolving agent: %w", err)
	}
	if err := agents.ReadyForChat(*agent); err != nil {
		return nil, err
	}
	if sess != nil && sess.AgentID != "" && sess.AgentID != agent.ID {
		return nil, ErrAgentMismatch
	}

	vars, err := r.resolveVariables(agent, req.Variables)
	if err != nil {
		return nil, err
	}

	if sess == nil {
		sess = &domain.ChatSession{ID: req.SessionID, AgentID: agent.ID}
		if err := r.sessions.SaveChatSession(sess); err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}
		r.emit(ctx, hooks.EventSessionStart, map[string]any{"sessionId": sess.ID, "agentId": agent.ID})
	}

	key := req.ClientKey
	if key == "" {
		key = sess.ID
	}
	runCtx, done := r.begin(ctx, key, agent.ID)
	defer done()

	user := domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   req.Content,
		Parts:     req.Parts,
		Timestamp: time.Now().UTC(),
	}
	if len(req.Files) > 0 {
		user.EnsureMetadata().Files = req.Files
	}
	if err := r.sessions.AppendMessage(sess.ID, user); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}

	log := r.log.With("session", sess.ID)
	log.Info().
		Str("agent", agent.ID).
		Bool("stream", req.Stream).
		Int("variables", len(vars)).
		Msg("sending message")
	r.emit(runCtx, hooks.EventMessageReceived, map[string]any{
		"sessionId": sess.ID,
		"agentId":   agent.ID,
		"messageId": user.ID,
		"content":   user.Text(),
	})

	replyID := uuid.NewString()
	creq := fastgpt.ChatRequest{
		ChatID:             sess.ID,
		ResponseChatItemID: replyID,
		Messages:           r.buildMessages(agent, user),
		Variables:          agents.ToAny(agent.GlobalVariables, vars),
		Detail:             true,
	}
	target := r.agents.Target(*agent)
	r.emit(runCtx, hooks.EventBeforeChat, map[string]any{"sessionId": sess.ID, "agentId": agent.ID})

	var resp *fastgpt.ChatResponse
	var streamed []domain.ProcessingStep
	if req.Stream && agent.SupportsStream {
		resp, streamed, err = r.stream(runCtx, target, creq, cb)
	} else {
		resp, err = r.client.Complete(runCtx, target, creq)
	}

	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil || errors.Is(err, context.Canceled) {
			r.savePartial(sess.ID, replyID, resp, streamed)
			log.Info().Msg("request cancelled")
			return nil, ErrCancelled
		}
		log.Error().Err(err).Str("agent", agent.ID).Msg("chat request failed")
		return nil, err
	}

	reply := domain.Message{
		ID:        replyID,
		Role:      domain.RoleAssistant,
		Content:   resp.Content(),
		Timestamp: time.Now().UTC(),
	}
	meta := reply.EnsureMetadata()
	meta.ResponseID = replyID
	meta.ProcessingSteps = resp.Steps()
	if len(meta.ProcessingSteps) == 0 {
		meta.ProcessingSteps = streamed
	}
	meta.Interactive = resp.Interactive

	r.emit(runCtx, hooks.EventMessageSending, map[string]any{
		"sessionId": sess.ID,
		"agentId":   agent.ID,
		"messageId": reply.ID,
		"content":   reply.Content,
	})
	if err := r.sessions.AppendMessage(sess.ID, reply); err != nil {
		return nil, fmt.Errorf("saving reply: %w", err)
	}

	elapsed := time.Since(start)
	log.Info().
		Str("agent", agent.ID).
		Int("replyLen", len(reply.Content)).
		Int("steps", len(meta.ProcessingSteps)).
		Dur("duration", elapsed).
		Msg("reply generated")
	r.emit(runCtx, hooks.EventAfterChat, map[string]any{
		"sessionId": sess.ID,
		"agentId":   agent.ID,
		"duration":  elapsed.Milliseconds(),
	})

	return &SendResult{
		SessionID: sess.ID,
		AgentID:   agent.ID,
		User:      user,
		Reply:     reply,
		Duration:  elapsed,
	}, nil
}

// buildMessages sends only the new turn; FastGPT restores earlier turns from
// the chatId.
func (r *Runner) buildMessages(a *domain.Agent, user domain.Message) []openai.ChatCompletionMessage {
	return fastgpt.ToOpenAIMessages(a.SystemPrompt, []domain.Message{user})
}

// stream consumes a FastGPT stream, forwarding events to cb. On cancellation
// it returns what was received so far together with the error.
func (r *Runner) stream(ctx context.Context, t fastgpt.Target, req fastgpt.ChatRequest, cb StreamCallback) (*fastgpt.ChatResponse, []domain.ProcessingStep, error) {
	ch, err := r.client.Stream(ctx, t, req)
	if err != nil {
		return nil, nil, err
	}

	var (
		content strings.Builder
		steps   []domain.ProcessingStep
		final   *fastgpt.ChatResponse
	)
	for ev := range ch {
		switch ev.Type {
		case fastgpt.EventAnswer, fastgpt.EventFastAnswer:
			content.WriteString(ev.Content)
		case fastgpt.EventFlowNodeStatus:
			if ev.Node != nil {
				steps = append(steps, domain.ProcessingStep{Name: ev.Node.Name, Status: ev.Node.Status})
			}
		case fastgpt.EventDone:
			final = ev.Response
		case fastgpt.EventError:
			if cb != nil {
				cb(ev)
			}
			return partial(content.String()), steps, errors.New(ev.Error)
		}
		if cb != nil && ev.Type != fastgpt.EventDone {
			cb(ev)
		}
	}

	if final == nil {
		if err := ctx.Err(); err != nil {
			return partial(content.String()), steps, err
		}
		final = partial(content.String())
	}
	if final.Content() == "" && content.Len() > 0 {
		withText := *final
		withText.Completion = partial(content.String()).Completion
		final = &withText
	}
	if cb != nil {
		cb(fastgpt.StreamEvent{Type: fastgpt.EventDone, Response: final})
	}
	return final, steps, nil
}

func partial(content string) *fastgpt.ChatResponse {
	return fastgpt.TextResponse(content)
}

// savePartial keeps whatever was streamed before a cancellation.
func (r *Runner) savePartial(sessionID, replyID string, resp *fastgpt.ChatResponse, steps []domain.ProcessingStep) {
	text := resp.Content()
	if text == "" {
		return
	}
	msg := domain.Message{
		ID:        replyID,
		Role:      domain.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	meta := msg.EnsureMetadata()
	meta.ResponseID = replyID
	meta.ProcessingSteps = steps
	if err := r.sessions.AppendMessage(sessionID, msg); err != nil {
		r.log.Warn().Err(err).Str("session", sessionID).Msg("saving partial reply")
	}
}

// Feedback records a like or dislike on an assistant message and forwards it
// to FastGPT. The local update is kept even when forwarding fails.
func (r *Runner) Feedback(ctx context.Context, sessionID, messageID string, kind domain.FeedbackKind, note string) (*domain.Message, error) {
	if kind != domain.FeedbackLiked && kind != domain.FeedbackDisliked && kind != domain.FeedbackNone {
		return nil, fmt.Errorf("chat: unknown feedback %q", kind)
	}
	sess, err := r.sessions.GetChatSession(sessionID)
	if err != nil {
		return nil, err
	}

	var msg *domain.Message
	for i := range sess.Messages {
		if sess.Messages[i].ID == messageID {
			msg = &sess.Messages[i]
			break
		}
	}
	if msg == nil {
		return nil, store.ErrNotFound
	}
	if msg.Role != domain.RoleAssistant {
		return nil, ErrNotAssistant
	}

	meta := msg.EnsureMetadata()
	if kind == domain.FeedbackNone {
		meta.Feedback = nil
	} else {
		meta.Feedback = &domain.Feedback{Kind: kind, Note: note, UpdatedAt: time.Now().UTC()}
	}
	if err := r.sessions.UpdateMessage(sessionID, *msg); err != nil {
		return nil, err
	}
	r.emit(ctx, hooks.EventMessageFeedback, map[string]any{
		"sessionId": sessionID,
		"messageId": messageID,
		"kind":      string(kind),
	})

	agent, err := r.agents.Get(sess.AgentID)
	if err != nil {
		return msg, fmt.Errorf("forwarding feedback: %w", err)
	}
	dataID := meta.ResponseID
	if dataID == "" {
		dataID = msg.ID
	}
	err = r.client.Feedback(ctx, r.agents.Target(*agent), fastgpt.FeedbackRequest{
		ChatID: sessionID,
		DataID: dataID,
		Kind:   kind,
		Note:   note,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("session", sessionID).Msg("forwarding feedback failed")
		return msg, fmt.Errorf("forwarding feedback: %w", err)
	}
	return msg, nil
}
