package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/agentdesk/internal/logging"
)

func testManager() *Manager {
	m := NewManager(logging.New(nil, "silent"))
	m.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

// recorder collects the handler names in call order.
type recorder struct{ calls []string }

func (r *recorder) handler(name string) Handler {
	return func(context.Context, Payload) error {
		r.calls = append(r.calls, name)
		return nil
	}
}

func TestEmitDeliversPayload(t *testing.T) {
	m := testManager()
	var got Payload
	m.On(EventSessionStart, "capture", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventSessionStart, map[string]any{"sessionId": "s1", "agentId": "support"})

	assert.Equal(t, EventSessionStart, got.Event)
	assert.Equal(t, "s1", got.Data["sessionId"])
	assert.Equal(t, 2024, got.At.Year())
}

func TestEmitOrderAndFiltering(t *testing.T) {
	m := testManager()
	rec := &recorder{}
	m.On(EventMessageReceived, "persist", rec.handler("persist"))
	m.OnAll("broadcast", rec.handler("broadcast"))
	m.On(EventMessageReceived, "notify", rec.handler("notify"))
	m.On(EventAlertRaised, "pager", rec.handler("pager"))

	m.Emit(context.Background(), EventMessageReceived, nil)
	assert.Equal(t, []string{"persist", "broadcast", "notify"}, rec.calls)

	rec.calls = nil
	m.Emit(context.Background(), EventGatewayStop, nil)
	assert.Equal(t, []string{"broadcast"}, rec.calls)

	assert.Equal(t, 3, m.Count(EventMessageReceived))
	assert.Equal(t, 2, m.Count(EventAlertRaised))
	assert.Equal(t, 1, m.Count(EventSessionDeleted))
}

func TestEmitSurvivesFailingHandlers(t *testing.T) {
	m := testManager()
	rec := &recorder{}
	m.On(EventAfterChat, "fails", func(context.Context, Payload) error { return errors.New("disk full") })
	m.On(EventAfterChat, "panics", func(context.Context, Payload) error { panic("nil map") })
	m.On(EventAfterChat, "ok", rec.handler("ok"))

	require.NotPanics(t, func() { m.Emit(context.Background(), EventAfterChat, nil) })
	assert.Equal(t, []string{"ok"}, rec.calls)
}

func TestEmitWithoutHandlers(t *testing.T) {
	assert.NotPanics(t, func() {
		testManager().Emit(context.Background(), EventGatewayStart, nil)
	})
}

func TestOffRemovesByName(t *testing.T) {
	m := testManager()
	rec := &recorder{}
	m.On(EventChatCancelled, "audit", rec.handler("audit"))
	m.OnAll("audit", rec.handler("audit-all"))
	m.On(EventChatCancelled, "metrics", rec.handler("metrics"))

	assert.Equal(t, 2, m.Off("audit"))
	assert.Equal(t, 0, m.Off("audit"))

	m.Emit(context.Background(), EventChatCancelled, nil)
	assert.Equal(t, []string{"metrics"}, rec.calls)
}

func TestKnown(t *testing.T) {
	for _, e := range AllEvents {
		assert.True(t, Known(e), e)
	}
	assert.False(t, Known("*"))
	assert.False(t, Known("message_deleted"))
}
