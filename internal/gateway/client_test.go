package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/aihub/agentdesk/internal/config"
)

func TestClientRegistry(t *testing.T) {
	reg := NewClientRegistry(silentLog())
	require.NotNil(t, reg)
	assert.Equal(t, 0, reg.Count())

	reg.Add(&Client{ConnID: "conn-1", Info: ClientInfo{ID: "client-1"}})
	reg.Add(&Client{ConnID: "conn-2", Info: ClientInfo{ID: "client-2"}})
	assert.Equal(t, 2, reg.Count())
	assert.Len(t, reg.List(), 2)

	got, ok := reg.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "client-1", got.Info.ID)

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)

	assert.True(t, reg.Remove("conn-1"))
	assert.False(t, reg.Remove("nonexistent"))
	assert.Equal(t, 1, reg.Count())
	_, ok = reg.Get("conn-1")
	assert.False(t, ok)
}

func TestClientRegistryOrderAndSummaries(t *testing.T) {
	reg := NewClientRegistry(silentLog())
	now := time.Now()
	reg.Add(&Client{ConnID: "late", Info: ClientInfo{ID: "cli", Mode: "cli"}, ConnectedAt: now.Add(time.Second)})
	reg.Add(&Client{ConnID: "early", Info: ClientInfo{ID: "web", Mode: "web"}, Auth: AuthResult{OK: true, Method: AuthModeToken}, Lang: language.English, ConnectedAt: now})

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ConnID)

	sums := reg.Summaries()
	assert.Equal(t, "web", sums[0].ClientID)
	assert.Equal(t, AuthModeToken, sums[0].AuthMethod)
	assert.Equal(t, "en", sums[0].Lang)
	assert.Equal(t, "cli", sums[1].Mode)
}

func TestClientRegistryBroadcastSkipsClosed(t *testing.T) {
	reg := NewClientRegistry(silentLog())
	reg.Add(&Client{ConnID: "gone", closed: true})
	assert.NotPanics(t, func() { reg.Broadcast(EventHook, map[string]string{"event": "x"}, 1) })
}

func TestClientRegistryCloseAll(t *testing.T) {
	reg := NewClientRegistry(silentLog())

	// Already-closed clients never touch their socket.
	reg.Add(&Client{ConnID: "conn-1", closed: true})
	reg.Add(&Client{ConnID: "conn-2", closed: true})

	reg.CloseAll()
	assert.Equal(t, 0, reg.Count())
}

func TestClientSendAfterClose(t *testing.T) {
	c := &Client{ConnID: "conn-1", closed: true}
	assert.ErrorIs(t, c.SendEvent(EventHook, map[string]string{"event": "x"}, 1), ErrClientClosed)
}

func TestNewClientNegotiatesLanguage(t *testing.T) {
	tests := []struct {
		locale string
		want   language.Tag
	}{
		{"", language.English},
		{"en-US", language.English},
		{"zh-CN", language.SimplifiedChinese},
		{"zh-CN,zh;q=0.9,en;q=0.8", language.SimplifiedChinese},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			c := NewClient(nil, ClientInfo{ID: "c"}, AuthResult{OK: true}, tt.locale, silentLog())
			assert.Equal(t, tt.want, c.Lang)
			assert.NotEmpty(t, c.ConnID)
		})
	}
}

func TestResolveBindAddrCustomHost(t *testing.T) {
	tests := []struct {
		name string
		bind string
		host string
		want string
	}{
		{"custom default", "custom", "", "0.0.0.0:3000"},
		{"custom host", "custom", "10.0.0.1", "10.0.0.1:3000"},
		{"empty fallback", "", "", "127.0.0.1:3000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GatewayConfig{Bind: tt.bind, Port: 3000, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}
