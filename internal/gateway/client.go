package gateway

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/text/language"

	"github.com/aihub/agentdesk/internal/i18n"
	"github.com/aihub/agentdesk/internal/logging"
)

var ErrClientClosed = errors.New("client connection closed")

// writeWait bounds a single frame or control message write.
const writeWait = 10 * time.Second

// Client is one authenticated socket. Writes are serialized; reads happen
// only on the connection's read loop.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Auth        AuthResult
	Lang        language.Tag
	ConnectedAt time.Time

	conn *websocket.Conn
	log  *logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an authenticated socket. locale is an Accept-Language
// style value; empty means English.
func NewClient(conn *websocket.Conn, info ClientInfo, auth AuthResult, locale string, log *logging.Logger) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Auth:        auth,
		Lang:        i18n.Negotiate(locale),
		ConnectedAt: time.Now(),
		conn:        conn,
		log:         log,
	}
}

func (c *Client) write(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return fn()
}

// Send writes one frame.
func (c *Client) Send(f Frame) error {
	return c.write(func() error { return c.conn.WriteJSON(f) })
}

// Ping writes a keepalive ping control frame.
func (c *Client) Ping() error {
	return c.write(func() error { return c.conn.WriteMessage(websocket.PingMessage, nil) })
}

func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

func (c *Client) RespondError(reqID string, e ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, e))
}

// ReadFrame blocks for the next frame. A message that is not JSON is
// reported as a protocol error without closing the socket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, &frameError{err: err}
	}
	return f, nil
}

type frameError struct{ err error }

func (e *frameError) Error() string { return "malformed frame: " + e.err.Error() }
func (e *frameError) Unwrap() error { return e.err }

// Close sends a close frame when possible and releases the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// ClientSummary describes a connection for the health RPC.
type ClientSummary struct {
	ConnID      string    `json:"connId"`
	ClientID    string    `json:"clientId"`
	Mode        string    `json:"mode,omitempty"`
	AuthMethod  string    `json:"authMethod,omitempty"`
	Lang        string    `json:"lang"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// ClientRegistry tracks the live connections for broadcasts.
type ClientRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Client
	log   *logging.Logger
}

func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{conns: make(map[string]*Client), log: log}
}

func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.conns[c.ConnID] = c
	n := len(r.conns)
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Int("clients", n).Msg("client connected")
}

// Remove drops connID and reports whether it was registered.
func (r *ClientRegistry) Remove(connID string) bool {
	r.mu.Lock()
	_, ok := r.conns[connID]
	delete(r.conns, connID)
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("connId", connID).Msg("client disconnected")
	}
	return ok
}

func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// List returns the connections ordered by connect time.
func (r *ClientRegistry) List() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Client) int {
		if n := a.ConnectedAt.Compare(b.ConnectedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ConnID, b.ConnID)
	})
	return out
}

func (r *ClientRegistry) Summaries() []ClientSummary {
	list := r.List()
	out := make([]ClientSummary, 0, len(list))
	for _, c := range list {
		out = append(out, ClientSummary{
			ConnID:      c.ConnID,
			ClientID:    c.Info.ID,
			Mode:        c.Info.Mode,
			AuthMethod:  c.Auth.Method,
			Lang:        c.Lang.String(),
			ConnectedAt: c.ConnectedAt,
		})
	}
	return out
}

// Broadcast sends an event to every connection. Connections that already
// closed are skipped silently.
func (r *ClientRegistry) Broadcast(event string, payload any, seq int64) {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("broadcast encode failed")
		return
	}
	for _, c := range r.List() {
		if err := c.Send(f); err != nil && !errors.Is(err, ErrClientClosed) {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Msg("broadcast send failed")
		}
	}
}

// CloseAll closes and forgets every connection.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Client)
	r.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
