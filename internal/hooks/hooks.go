// Package hooks dispatches chat, session, alert and gateway lifecycle events
// to in-process handlers.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aihub/agentdesk/internal/logging"
)

const (
	EventMessageReceived = "message_received"
	EventMessageSending  = "message_sending"
	EventBeforeChat      = "before_chat"
	EventAfterChat       = "after_chat"
	EventChatCancelled   = "chat_cancelled"
	EventMessageFeedback = "message_feedback"
	EventSessionStart    = "session_start"
	EventSessionDeleted  = "session_deleted"
	EventAgentSelected   = "agent_selected"
	EventAlertRaised     = "alert_raised"
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// AllEvents lists every event the application emits.
var AllEvents = []string{
	EventMessageReceived, EventMessageSending, EventBeforeChat, EventAfterChat,
	EventChatCancelled, EventMessageFeedback, EventSessionStart, EventSessionDeleted,
	EventAgentSelected, EventAlertRaised, EventGatewayStart, EventGatewayStop,
}

// Known reports whether event is one of AllEvents.
func Known(event string) bool {
	return slices.Contains(AllEvents, event)
}

// anyEvent subscribes a handler to every event.
const anyEvent = "*"

// Payload is what a handler receives.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. An error or panic is logged and the
// remaining handlers still run.
type Handler func(ctx context.Context, p Payload) error

type subscription struct {
	event string
	name  string
	fn    Handler
}

func (s subscription) matches(event string) bool {
	return s.event == anyEvent || s.event == event
}

// Manager keeps subscriptions in registration order and calls them
// synchronously from Emit.
type Manager struct {
	mu   sync.RWMutex
	subs []subscription
	log  *logging.Logger
	now  func() time.Time
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{log: log.Sub("hooks"), now: time.Now}
}

// On subscribes fn to event under name. Names only identify handlers for
// Off and in logs; they need not be unique.
func (m *Manager) On(event, name string, fn Handler) {
	if !Known(event) {
		m.log.Warn().Str("event", event).Str("handler", name).Msg("subscribing to unknown hook event")
	}
	m.add(subscription{event: event, name: name, fn: fn})
}

// OnAll subscribes fn to every event, including ones added later.
func (m *Manager) OnAll(name string, fn Handler) {
	m.add(subscription{event: anyEvent, name: name, fn: fn})
}

func (m *Manager) add(s subscription) {
	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()
	m.log.Debug().Str("event", s.event).Str("handler", s.name).Msg("hook registered")
}

// Off removes every subscription registered under name and returns how
// many were removed.
func (m *Manager) Off(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.subs)
	m.subs = slices.DeleteFunc(m.subs, func(s subscription) bool { return s.name == name })
	return before - len(m.subs)
}

func (m *Manager) matching(event string) []subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []subscription
	for _, s := range m.subs {
		if s.matches(event) {
			out = append(out, s)
		}
	}
	return out
}

// Count returns how many handlers Emit(event) would call.
func (m *Manager) Count(event string) int {
	return len(m.matching(event))
}

// Emit calls the handlers of event in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	subs := m.matching(event)
	if len(subs) == 0 {
		return
	}
	p := Payload{Event: event, At: m.now(), Data: data}
	for _, s := range subs {
		if err := call(ctx, s.fn, p); err != nil {
			m.log.Warn().Err(err).Str("event", event).Str("handler", s.name).Msg("hook handler failed")
		}
	}
}

func call(ctx context.Context, fn Handler, p Payload) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return fn(ctx, p)
}
