package gateway

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the only wire protocol revision this server speaks.
const ProtocolVersion = 1

// Frame kinds.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Pushed events.
const (
	EventConnectChallenge = "connect.challenge"
	// EventChatDelta carries one streamed chat event for a chat.send request.
	EventChatDelta = "chat.delta"
	// EventHook mirrors every hook event (session_start, alert_raised, ...).
	EventHook = "hook"
	// EventConnectionStatus reports upstream connectivity changes.
	EventConnectionStatus = "connection.status"
)

// ServerEvents lists the events advertised in hello-ok.
var ServerEvents = []string{EventConnectChallenge, EventChatDelta, EventHook, EventConnectionStatus}

// Error codes shared by RPC error frames and REST error bodies.
const (
	CodeProtocolError    = "protocol_error"
	CodeProtocolMismatch = "protocol_mismatch"
	CodeUnauthorized     = "unauthorized"
	CodeRateLimited      = "rate_limited"
	CodeMethodNotFound   = "method_not_found"
	CodeInvalidParams    = "invalid_params"
	CodeInvalidRequest   = "invalid_request"
	CodeInvalidVariables = "invalid_variables"
	CodeAgentNotReady    = "agent_not_ready"
	CodeNotFound         = "not_found"
	CodeForbidden        = "forbidden"
	CodeTooLarge         = "too_large"
	CodeCancelled        = "cancelled"
	CodeUpstreamError    = "upstream_error"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// Frame is the envelope of every message on the socket. Type selects which
// of the remaining fields are meaningful.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error carried by a failed response frame.
type ErrorShape struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RetryAfter int    `json:"retryAfterMs,omitempty"`
}

func (e ErrorShape) Error() string {
	return e.Code + ": " + e.Message
}

// ConnectParams is the body of the first request on a new socket.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	Caps        []string     `json:"caps,omitempty"`
	// Locale selects the language of suggestion and alert texts.
	Locale    string `json:"locale,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// negotiate checks that the client's protocol range covers ProtocolVersion.
// A zero bound is open.
func (p ConnectParams) negotiate() error {
	if p.MinProtocol > ProtocolVersion || (p.MaxProtocol > 0 && p.MaxProtocol < ProtocolVersion) {
		return ErrorShape{
			Code:    CodeProtocolMismatch,
			Message: fmt.Sprintf("server speaks protocol %d, client wants %d..%d", ProtocolVersion, p.MinProtocol, p.MaxProtocol),
			Details: map[string]int{"protocol": ProtocolVersion},
		}
	}
	return nil
}

// ClientInfo identifies the connecting application.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"` // web, cli or admin
	InstanceID  string `json:"instanceId,omitempty"`
}

// ConnectAuth carries the credentials of a connect request.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Host    string `json:"host,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the RPC methods and events available on this connection.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy tells the client the limits the server enforces.
// TickIntervalMs is the keepalive ping period.
type ServerPolicy struct {
	MaxPayload       int `json:"maxPayload"`
	MaxBufferedBytes int `json:"maxBufferedBytes"`
	TickIntervalMs   int `json:"tickIntervalMs"`
}

func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s params: %w", method, err)
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding response %s: %w", id, err)
	}
	return Frame{Type: FrameTypeResponse, ID: id, OK: boolPtr(true), Payload: raw}, nil
}

func NewErrorResponse(id string, e ErrorShape) Frame {
	return Frame{Type: FrameTypeResponse, ID: id, OK: boolPtr(false), Error: &e}
}

func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s event: %w", event, err)
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

func boolPtr(b bool) *bool { return &b }
