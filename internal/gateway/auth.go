package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aihub/agentdesk/internal/config"
)

const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
	AuthModeNone     = "none"
)

// Environment fallbacks for gateway credentials left empty in the config.
const (
	envGatewayToken    = "AGENTDESK_GATEWAY_TOKEN"
	envGatewayPassword = "AGENTDESK_GATEWAY_PASSWORD"
)

// AuthResult is the outcome of checking one set of credentials.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func denied(reason string) AuthResult { return AuthResult{Reason: reason} }

// ResolvedAuth is the gateway's effective credential set.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// secret returns the credential the mode checks against.
func (a ResolvedAuth) secret() string {
	if a.Mode == AuthModePassword {
		return a.Password
	}
	return a.Token
}

// ResolveAuth fills empty credentials from the environment. Without an
// explicit mode, a configured password selects password mode and anything
// else selects token mode.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	a := ResolvedAuth{
		Mode:     cfg.Mode,
		Token:    firstNonEmpty(cfg.Token, os.Getenv(envGatewayToken)),
		Password: firstNonEmpty(cfg.Password, os.Getenv(envGatewayPassword)),
	}
	if a.Mode == "" {
		a.Mode = AuthModeToken
		if a.Password != "" {
			a.Mode = AuthModePassword
		}
	}
	return a
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Authorize checks connect credentials against the gateway's.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	switch server.Mode {
	case AuthModeNone:
		return AuthResult{OK: true, Method: AuthModeNone}
	case AuthModeToken, AuthModePassword:
	default:
		if client == nil {
			return denied("no credentials provided")
		}
		return denied("unknown auth mode: " + server.Mode)
	}
	if client == nil {
		return denied("no credentials provided")
	}

	given := client.Token
	if server.Mode == AuthModePassword {
		given = client.Password
	}
	switch {
	case server.secret() == "":
		return denied("server " + server.Mode + " not configured")
	case given == "":
		return denied(server.Mode + " required")
	case !safeEqual(given, server.secret()):
		return denied(server.Mode + "_mismatch")
	}
	return AuthResult{OK: true, Method: server.Mode}
}

// AuthorizeHTTP checks the bearer credential of a REST request. The value
// is the token or the password depending on the mode.
func AuthorizeHTTP(server ResolvedAuth, r *http.Request) AuthResult {
	if server.Mode == AuthModeNone {
		return AuthResult{OK: true, Method: AuthModeNone}
	}
	scheme, cred, _ := strings.Cut(r.Header.Get("Authorization"), " ")
	cred = strings.TrimSpace(cred)
	if !strings.EqualFold(scheme, "Bearer") || cred == "" {
		return denied("bearer credentials required")
	}
	return Authorize(server, &ConnectAuth{Token: cred, Password: cred})
}

// safeEqual compares in constant time, including when lengths differ.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

// authRateLimiter counts failed logins per remote host over a sliding
// window. The least recently failing hosts are evicted beyond
// authRateMaxIPs, and idle hosts expire after the window.
type authRateLimiter struct {
	mu       sync.Mutex
	failures *expirable.LRU[string, []time.Time]
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{
		failures: expirable.NewLRU[string, []time.Time](authRateMaxIPs, nil, authRateWindow),
	}
}

func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// recent returns host's failures inside the window. Caller holds mu.
func (l *authRateLimiter) recent(host string) []time.Time {
	times, _ := l.failures.Peek(host)
	cutoff := time.Now().Add(-authRateWindow)
	kept := make([]time.Time, 0, len(times))
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := remoteHost(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.recent(host)
	if len(kept) == 0 {
		l.failures.Remove(host)
		return true
	}
	return len(kept) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures.Add(host, append(l.recent(host), time.Now()))
}
