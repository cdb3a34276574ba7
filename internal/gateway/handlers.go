package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aihub/agentdesk/internal/agents"
	"github.com/aihub/agentdesk/internal/chat"
	"github.com/aihub/agentdesk/internal/fastgpt"
	"github.com/aihub/agentdesk/internal/files"
	"github.com/aihub/agentdesk/internal/performance"
	"github.com/aihub/agentdesk/internal/proxy"
	"github.com/aihub/agentdesk/internal/store"
)

// maxJSONBody bounds decoded REST request bodies.
const maxJSONBody = 10 << 20

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Clients  int    `json:"clients,omitempty"`
	InFlight int    `json:"inFlight,omitempty"`
	Uptime   string `json:"uptime,omitempty"`
}

// ErrorBody is the JSON body of every failed REST request.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated RPC health method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"code":  CodeNotFound,
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: message, Code: code})
}

// writeErr maps a service error onto an HTTP status and error code.
func writeErr(w http.ResponseWriter, err error) {
	status, code := classify(err)
	body := ErrorBody{Error: err.Error(), Code: code}
	var verr *agents.VariablesError
	if errors.As(err, &verr) {
		body.Details = verr.Issues
	}
	writeJSON(w, status, body)
}

// classify returns the HTTP status and error code for err. RPC responses
// reuse the code.
func classify(err error) (int, string) {
	var (
		verr *agents.VariablesError
		aerr *fastgpt.APIError
		uerr *proxy.UpstreamError
	)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, files.ErrNotFound),
		errors.Is(err, performance.ErrAlertNotFound), errors.Is(err, performance.ErrBenchmarkNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, CodeInvalidVariables
	case errors.Is(err, agents.ErrNotReady):
		return http.StatusUnprocessableEntity, CodeAgentNotReady
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrAgentMismatch),
		errors.Is(err, chat.ErrNotAssistant), errors.Is(err, files.ErrInvalidID),
		errors.Is(err, files.ErrEmpty), errors.Is(err, proxy.ErrBadTarget),
		errors.Is(err, proxy.ErrBadMethod), errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, proxy.ErrHostNotAllowed):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, proxy.ErrBodyTooLarge), errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge
	case errors.Is(err, chat.ErrCancelled):
		return http.StatusConflict, CodeCancelled
	case errors.As(err, &aerr), errors.As(err, &uerr):
		return http.StatusBadGateway, CodeUpstreamError
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

var (
	errInvalidRequest = errors.New("invalid request")
	errUnavailable    = errors.New("service not configured")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, fmt.Sprintf(format, args...))
}

func unavailable(what string) error {
	return fmt.Errorf("%w: %s", errUnavailable, what)
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return invalid("malformed JSON body: %v", err)
	}
	return nil
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// RespondErr sends err using the same codes as the REST API.
func (rc *RequestContext) RespondErr(err error) {
	_, code := classify(err)
	shape := ErrorShape{Code: code, Message: err.Error()}
	var verr *agents.VariablesError
	if errors.As(err, &verr) {
		shape.Details = verr.Issues
	}
	var aerr *fastgpt.APIError
	if errors.As(err, &aerr) && aerr.Status >= 500 {
		shape.Retryable = true
	}
	rc.Client.RespondError(rc.Frame.ID, shape)
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
