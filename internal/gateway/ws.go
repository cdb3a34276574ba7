package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aihub/agentdesk/internal/version"
)

const (
	// maxPayload is the largest accepted websocket frame.
	maxPayload       = 4 << 20
	maxBufferedBytes = 16 << 20
	handshakeTimeout = 10 * time.Second
	// tickInterval is the keepalive ping period advertised in hello-ok.
	tickInterval = 30 * time.Second
	// pongWait allows one missed tick before the connection is dropped.
	pongWait = 2 * tickInterval
)

// checkWebSocketOrigin accepts requests without an Origin header, which
// come from non-browser clients, and browser origins on the allow list.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || originAllowed(origin, allowed)
	}
}

// handleWebSocket upgrades the request and serves the connection until the
// client leaves. A chat turn still running for the connection is cancelled
// when it closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("websocket refused: too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		var shape ErrorShape
		if errors.As(err, &shape) && shape.Code == CodeUnauthorized {
			s.authLimiter.recordFailure(r.RemoteAddr)
		}
		conn.Close()
		return
	}

	s.clients.Add(client)
	done := make(chan struct{})
	go s.keepalive(client, done)

	s.readLoop(client)

	close(done)
	s.clients.Remove(client.ConnID)
	if s.chat != nil && s.chat.Cancel(client.ConnID) {
		s.log.Info().Str("connId", client.ConnID).Msg("cancelled chat of disconnected client")
	}
	client.Close()
}

// handshake runs challenge, connect and hello-ok. Failures are answered on
// the socket before the error is returned.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	params, err := s.acceptConnect(frame)
	if err != nil {
		var shape ErrorShape
		if errors.As(err, &shape) {
			rejectConnect(conn, frame.ID, shape)
		}
		return nil, err
	}

	authRes := Authorize(s.auth, params.Auth)
	if !authRes.OK {
		shape := ErrorShape{Code: CodeUnauthorized, Message: authRes.Reason}
		rejectConnect(conn, frame.ID, shape)
		return nil, shape
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	client := NewClient(conn, params.Client, authRes, params.Locale, s.log.Sub("ws"))
	hello, err := NewResponse(frame.ID, s.hello(client.ConnID))
	if err != nil {
		return nil, err
	}
	if err := client.Send(hello); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("mode", params.Client.Mode).
		Str("authMethod", authRes.Method).
		Str("lang", client.Lang.String()).
		Msg("client authenticated")
	return client, nil
}

// acceptConnect validates the first frame and decodes its params.
func (s *Server) acceptConnect(frame Frame) (ConnectParams, error) {
	var p ConnectParams
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		return p, ErrorShape{Code: CodeProtocolError, Message: "expected connect request"}
	}
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			return p, ErrorShape{Code: CodeInvalidParams, Message: "invalid connect params"}
		}
	}
	if err := p.negotiate(); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Server) hello(connID string) HelloOK {
	return HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: s.version, Commit: version.Get().Commit, ConnID: connID},
		Features: Features{Methods: s.Methods(), Events: ServerEvents},
		Policy: ServerPolicy{
			MaxPayload:       maxPayload,
			MaxBufferedBytes: maxBufferedBytes,
			TickIntervalMs:   int(tickInterval / time.Millisecond),
		},
	}
}

// rejectConnect answers a failed connect and starts the close handshake.
func rejectConnect(conn *websocket.Conn, reqID string, shape ErrorShape) {
	deadline := time.Now().Add(time.Second)
	conn.SetWriteDeadline(deadline)
	conn.WriteJSON(NewErrorResponse(reqID, shape))
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, shape.Code), deadline)
}

// keepalive pings the client every tick until done is closed or a ping
// cannot be written.
func (s *Server) keepalive(c *Client, done <-chan struct{}) {
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := c.Ping(); err != nil {
				s.log.Debug().Err(err).Str("connId", c.ConnID).Msg("keepalive ping failed")
				return
			}
		}
	}
}

// readLoop dispatches request frames until the socket fails.
func (s *Server) readLoop(c *Client) {
	for {
		frame, err := c.ReadFrame()
		var ferr *frameError
		switch {
		case errors.As(err, &ferr):
			c.RespondError("", ErrorShape{Code: CodeProtocolError, Message: ferr.Error()})
			continue
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			s.log.Debug().Str("connId", c.ConnID).Msg("client closed connection")
			return
		case err != nil:
			s.log.Debug().Err(err).Str("connId", c.ConnID).Msg("read ended")
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Str("connId", c.ConnID).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(c, frame)
	}
}

// dispatch runs the handler for frame. Handler time is tracked as
// rpc.<method>; a panicking handler answers CodeInternal.
func (s *Server) dispatch(c *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		c.RespondError(frame.ID, ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	start := time.Now()
	failed := false
	defer func() {
		if v := recover(); v != nil {
			failed = true
			s.log.Error().
				Interface("panic", v).
				Str("method", frame.Method).
				Bytes("stack", debug.Stack()).
				Msg("rpc handler panicked")
			c.RespondError(frame.ID, ErrorShape{Code: CodeInternal, Message: "internal error"})
		}
		if s.monitor != nil {
			s.monitor.Record("rpc."+frame.Method, time.Since(start), failed)
		}
	}()

	handler(&RequestContext{Client: c, Frame: frame, Server: s})
}
