// Package proxy forwards browser requests to allow-listed upstream AI
// endpoints, passing server-sent event streams through as they arrive.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/aihub/agentdesk/internal/logging"
)

// DefaultMaxBodyBytes is the request body limit when none is configured.
const DefaultMaxBodyBytes = 10 << 20

var (
	ErrHostNotAllowed = errors.New("proxy: target host is not allowed")
	ErrBodyTooLarge   = errors.New("proxy: request body too large")
	ErrBadTarget      = errors.New("proxy: invalid target url")
	ErrBadMethod      = errors.New("proxy: method not allowed")
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Request is a proxied call as posted by the browser.
type Request struct {
	TargetURL string            `json:"targetUrl"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	// Body is sent as-is; a JSON string is unwrapped first so callers can
	// post pre-serialized payloads.
	Body json.RawMessage `json:"body,omitempty"`
}

// Observer receives the timing of every upstream call.
type Observer interface {
	ObserveUpstream(op string, d time.Duration, err error)
}

// Config configures a Proxy.
type Config struct {
	AllowedHosts []string
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxRetries   int
	Flusher      FlusherConfig
}

// Proxy forwards requests to allow-listed hosts.
type Proxy struct {
	cfg       Config
	http      *retryablehttp.Client
	log       *logging.Logger
	observers []Observer
}

// New creates a proxy.
func New(cfg Config, log *logging.Logger, observers ...Observer) *Proxy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = log.Sub("proxy.http")
	if t, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
		t.ResponseHeaderTimeout = cfg.Timeout
	}

	return &Proxy{
		cfg:       cfg,
		http:      rc,
		log:       log.Sub("proxy"),
		observers: observers,
	}
}

// checkRetry retries connection failures and explicit back-pressure only;
// chat requests are not idempotent, so generic 5xx answers pass through.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true, nil
	}
	return false, nil
}

// AllowedHost reports whether host matches the allow list. Entries match the
// host itself or any subdomain; "*" allows every host.
func (p *Proxy) AllowedHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, a := range p.cfg.AllowedHosts {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case a == "":
		case a == "*":
			return true
		case host == a, strings.HasSuffix(host, "."+a):
			return true
		}
	}
	return false
}

func (p *Proxy) target(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, ErrBadTarget
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrBadTarget
	}
	if !p.AllowedHost(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return u, nil
}

func requestBody(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			return []byte(s)
		}
	}
	return trimmed
}

// Forward sends req upstream and writes the answer to w. Validation and
// connection errors are returned before anything is written; once the
// upstream status is written, errors are only logged.
func (p *Proxy) Forward(ctx context.Context, req Request, w http.ResponseWriter) (err error) {
	start := time.Now()
	defer func() {
		for _, o := range p.observers {
			o.ObserveUpstream("proxy.forward", time.Since(start), err)
		}
	}()

	u, err := p.target(req.TargetURL)
	if err != nil {
		return err
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("%w: %s", ErrBadMethod, method)
	}
	body := requestBody(req.Body)
	if int64(len(body)) > p.cfg.MaxBodyBytes {
		return ErrBodyTooLarge
	}

	var rawBody any
	if body != nil {
		rawBody = body
	}
	out, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), rawBody)
	if err != nil {
		return fmt.Errorf("proxy: creating request: %w", err)
	}
	for k, v := range req.Headers {
		out.Header.Set(k, v)
	}
	stripHopHeaders(out.Header)
	out.Header.Del("Host")
	out.Header.Del("Content-Length")
	out.Header.Del("Accept-Encoding")
	if body != nil && out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(out)
	if err != nil {
		return &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	stripHopHeaders(w.Header())
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)

	streaming := strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
	p.log.Debug().
		Str("host", u.Host).
		Str("method", method).
		Int("status", resp.StatusCode).
		Bool("stream", streaming).
		Msg("forwarding response")

	var copyErr error
	if streaming {
		fw := newEventFlusher(w, p.cfg.Flusher)
		_, copyErr = io.Copy(fw, resp.Body)
		if cerr := fw.Close(); copyErr == nil {
			copyErr = cerr
		}
	} else {
		_, copyErr = io.Copy(w, resp.Body)
	}
	if copyErr != nil && ctx.Err() == nil {
		p.log.Warn().Err(copyErr).Str("host", u.Host).Msg("copying upstream response")
	}
	return nil
}

// UpstreamError wraps a failure to reach the upstream.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "proxy: upstream unreachable: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

func stripHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
