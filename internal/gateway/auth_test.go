package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/agentdesk/internal/config"
)

func TestSafeEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"secret", "secret", true},
		{"secret", "wrong", false},
		{"short", "longer-string", false},
		{"", "", true},
		{"secret", "", false},
		{"", "secret", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeEqual(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestResolveAuth(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		cfg      config.GatewayAuth
		wantMode string
		wantTok  string
		wantPass string
	}{
		{"token from config", nil, config.GatewayAuth{Mode: "token", Token: "config-token"}, "token", "config-token", ""},
		{"password from config", nil, config.GatewayAuth{Mode: "password", Password: "config-pass"}, "password", "", "config-pass"},
		{"defaults to token", nil, config.GatewayAuth{Token: "my-token"}, "token", "my-token", ""},
		{"defaults to password when set", nil, config.GatewayAuth{Password: "my-pass"}, "password", "", "my-pass"},
		{"none kept", nil, config.GatewayAuth{Mode: "none"}, "none", "", ""},
		{
			"env fallback",
			map[string]string{"AGENTDESK_GATEWAY_TOKEN": "env-token", "AGENTDESK_GATEWAY_PASSWORD": "env-pass"},
			config.GatewayAuth{Mode: "token"},
			"token", "env-token", "env-pass",
		},
		{
			"config overrides env",
			map[string]string{"AGENTDESK_GATEWAY_TOKEN": "env-token"},
			config.GatewayAuth{Mode: "token", Token: "config-token"},
			"token", "config-token", "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AGENTDESK_GATEWAY_TOKEN", "")
			t.Setenv("AGENTDESK_GATEWAY_PASSWORD", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			auth := ResolveAuth(tt.cfg)
			assert.Equal(t, tt.wantMode, auth.Mode)
			assert.Equal(t, tt.wantTok, auth.Token)
			assert.Equal(t, tt.wantPass, auth.Password)
		})
	}
}

func TestAuthorize(t *testing.T) {
	tokenAuth := ResolvedAuth{Mode: "token", Token: "secret"}
	passAuth := ResolvedAuth{Mode: "password", Password: "pass123"}

	tests := []struct {
		name       string
		server     ResolvedAuth
		client     *ConnectAuth
		wantOK     bool
		wantMethod string
		wantReason string
	}{
		{"token ok", tokenAuth, &ConnectAuth{Token: "secret"}, true, "token", ""},
		{"token mismatch", tokenAuth, &ConnectAuth{Token: "wrong"}, false, "", "token_mismatch"},
		{"token empty", tokenAuth, &ConnectAuth{}, false, "", "token required"},
		{"server token missing", ResolvedAuth{Mode: "token"}, &ConnectAuth{Token: "x"}, false, "", "server token not configured"},
		{"password ok", passAuth, &ConnectAuth{Password: "pass123"}, true, "password", ""},
		{"password mismatch", passAuth, &ConnectAuth{Password: "wrong"}, false, "", "password_mismatch"},
		{"password empty", passAuth, &ConnectAuth{}, false, "", "password required"},
		{"server password missing", ResolvedAuth{Mode: "password"}, &ConnectAuth{Password: "x"}, false, "", "server password not configured"},
		{"nil credentials", tokenAuth, nil, false, "", "no credentials provided"},
		{"none mode", ResolvedAuth{Mode: "none"}, nil, true, "none", ""},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &ConnectAuth{Token: "x"}, false, "", "unknown auth mode: oauth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, tt.wantMethod, res.Method)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestAuthorizeHTTP(t *testing.T) {
	tests := []struct {
		name   string
		server ResolvedAuth
		header string
		wantOK bool
	}{
		{"bearer token", ResolvedAuth{Mode: "token", Token: "secret"}, "Bearer secret", true},
		{"lowercase scheme", ResolvedAuth{Mode: "token", Token: "secret"}, "bearer secret", true},
		{"wrong token", ResolvedAuth{Mode: "token", Token: "secret"}, "Bearer nope", false},
		{"basic scheme", ResolvedAuth{Mode: "token", Token: "secret"}, "Basic secret", false},
		{"missing header", ResolvedAuth{Mode: "token", Token: "secret"}, "", false},
		{"password as bearer", ResolvedAuth{Mode: "password", Password: "pw"}, "Bearer pw", true},
		{"none mode", ResolvedAuth{Mode: "none"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.wantOK, AuthorizeHTTP(tt.server, r).OK)
		})
	}
}

func TestAuthRateLimiter(t *testing.T) {
	t.Run("allows initially", func(t *testing.T) {
		assert.True(t, newAuthRateLimiter().allow("192.168.1.1:12345"))
	})

	t.Run("allows after few failures", func(t *testing.T) {
		l := newAuthRateLimiter()
		for i := 0; i < 5; i++ {
			l.recordFailure("192.168.1.1:12345")
		}
		assert.True(t, l.allow("192.168.1.1:12345"))
	})

	t.Run("blocks per host", func(t *testing.T) {
		l := newAuthRateLimiter()
		for i := 0; i < authRateMaxFails; i++ {
			l.recordFailure("192.168.1.1:12345")
		}
		assert.False(t, l.allow("192.168.1.1:4444"))
		assert.True(t, l.allow("192.168.1.2:12345"))
	})

	t.Run("host without port", func(t *testing.T) {
		l := newAuthRateLimiter()
		for i := 0; i < authRateMaxFails; i++ {
			l.recordFailure("192.168.1.1")
		}
		assert.False(t, l.allow("192.168.1.1"))
	})

	t.Run("expired failures are forgotten", func(t *testing.T) {
		l := newAuthRateLimiter()
		old := time.Now().Add(-authRateWindow - time.Minute)
		stale := make([]time.Time, authRateMaxFails)
		for i := range stale {
			stale[i] = old
		}
		l.failures.Add("192.168.1.1", stale)
		assert.True(t, l.allow("192.168.1.1:12345"))
		assert.Equal(t, 0, l.failures.Len())
	})

	t.Run("new failure keeps only recent history", func(t *testing.T) {
		l := newAuthRateLimiter()
		l.failures.Add("10.0.0.1", []time.Time{time.Now().Add(-time.Hour)})
		l.recordFailure("10.0.0.1:80")
		times, ok := l.failures.Get("10.0.0.1")
		require.True(t, ok)
		assert.Len(t, times, 1)
	})
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"empty allow list", nil, "http://evil.com", false},
		{"wildcard", []string{"*"}, "http://anything.com", true},
		{"exact match", []string{"http://allowed.com"}, "http://allowed.com", true},
		{"no match", []string{"http://allowed.com"}, "http://evil.com", false},
		{"second of many", []string{"http://one.com", "http://two.com"}, "http://two.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkWebSocketOrigin(tt.allowed)(req))
		})
	}
}
