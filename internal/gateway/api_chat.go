package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/aihub/agentdesk/internal/chat"
	"github.com/aihub/agentdesk/internal/domain"
	"github.com/aihub/agentdesk/internal/fastgpt"
	"github.com/aihub/agentdesk/internal/files"
	"github.com/aihub/agentdesk/internal/proxy"
)

// sseWriter writes server-sent events, sending headers on first use.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) send(event string, v any) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// handleChat runs one chat turn. With "stream": true and an Accept header
// that allows text/event-stream the reply is streamed as server-sent events
// ending in a "result" or "error" event; otherwise the SendResult is
// returned as JSON.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeErr(w, unavailable("chat"))
		return
	}
	var req chat.SendRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatCallTimeout)
	defer cancel()

	if !req.Stream || !acceptsEventStream(r) {
		res, err := s.chat.Send(ctx, req, nil)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	sse := newSSEWriter(w)
	res, err := s.chat.Send(ctx, req, func(ev fastgpt.StreamEvent) {
		if werr := sse.send(string(ev.Type), ev); werr != nil {
			s.log.Debug().Err(werr).Msg("chat stream write failed")
		}
	})
	if err != nil {
		if !sse.started {
			writeErr(w, err)
			return
		}
		_, code := classify(err)
		sse.send("error", ErrorBody{Error: err.Error(), Code: code})
		return
	}
	sse.send("result", res)
}

func acceptsEventStream(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/event-stream") || strings.Contains(accept, "*/*")
}

type chatCancelRequest struct {
	ClientKey string `json:"clientKey"`
}

func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeErr(w, unavailable("chat"))
		return
	}
	var req chatCancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.ClientKey == "" {
		writeErr(w, invalid("clientKey is required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": s.chat.Cancel(req.ClientKey)})
}

func (s *Server) handleChatProxy(w http.ResponseWriter, r *http.Request) {
	if s.proxy == nil {
		writeErr(w, unavailable("proxy"))
		return
	}
	var req proxy.Request
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.proxy.Forward(r.Context(), req, w); err != nil {
		s.log.Warn().Err(err).Str("target", req.TargetURL).Msg("proxy request rejected")
		writeErr(w, err)
	}
}

type feedbackRequest struct {
	SessionID string              `json:"sessionId"`
	MessageID string              `json:"messageId"`
	Kind      domain.FeedbackKind `json:"kind"`
	Note      string              `json:"note,omitempty"`
}

func (s *Server) feedback(ctx context.Context, req feedbackRequest) (*domain.Message, error) {
	if s.chat == nil {
		return nil, unavailable("chat")
	}
	if req.SessionID == "" || req.MessageID == "" {
		return nil, invalid("sessionId and messageId are required")
	}
	switch req.Kind {
	case domain.FeedbackLiked, domain.FeedbackDisliked, domain.FeedbackNone:
	default:
		return nil, invalid("unknown feedback kind %q", req.Kind)
	}
	return s.chat.Feedback(ctx, req.SessionID, req.MessageID, req.Kind, req.Note)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	msg, err := s.feedback(r.Context(), req)
	if err != nil {
		// The rating is stored locally even when forwarding fails.
		if msg != nil {
			writeJSON(w, http.StatusOK, map[string]any{"message": msg, "warning": err.Error()})
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// saveUpload stores the "file" part of a multipart request.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (*files.Upload, error) {
	if s.uploads == nil {
		return nil, unavailable("uploads")
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxSize()+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, invalid("expected multipart/form-data: %v", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, invalid("missing file field")
		}
		if err != nil {
			return nil, uploadErr(err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		up, err := s.uploads.Save(part, part.FileName())
		part.Close()
		if err != nil {
			return nil, uploadErr(err)
		}
		return up, nil
	}
}

func uploadErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return files.ErrTooLarge
	}
	return err
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	up, err := s.saveUpload(w, r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

type cadAnalyzeRequest struct {
	FileID string `json:"fileId"`
}

// handleCADAnalyze analyzes either a DXF posted as multipart "file" or a
// previous upload referenced by {"fileId": ...}.
func (s *Server) handleCADAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.cad == nil {
		writeErr(w, unavailable("cad analyzer"))
		return
	}

	var (
		fileID string
		upload *files.Upload
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		up, err := s.saveUpload(w, r)
		if err != nil {
			writeErr(w, err)
			return
		}
		upload, fileID = up, up.ID
	} else {
		var req cadAnalyzeRequest
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		if req.FileID == "" {
			writeErr(w, invalid("fileId is required"))
			return
		}
		fileID = req.FileID
	}

	res, err := s.cad.Analyze(fileID)
	if err != nil {
		if !errors.Is(err, files.ErrNotFound) && !errors.Is(err, files.ErrInvalidID) {
			err = invalid("%v", err)
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis": res,
		"summary":  res.Summary(),
		"upload":   upload,
	})
}
