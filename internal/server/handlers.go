package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"zonegate/internal/dialogue"
	"zonegate/internal/logging"
	"zonegate/internal/transparency"
)

// ChatRequest starts a turn. An empty session id opens a new session.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// AnswerRequest answers a pending question with a zero-based option index.
type AnswerRequest struct {
	SessionID      string `json:"session_id"`
	SelectionIndex *int   `json:"selection_index"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Category    string   `json:"category"`
	TraceID     string   `json:"trace_id,omitempty"`
	Remediation []string `json:"remediation,omitempty"`
}

const maxBody = 1 << 20

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "zonegate"})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
	}
	res, err := s.dlg.Process(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, r, &dialogue.ValidationError{Field: "session_id", Message: "must not be empty"})
		return
	}
	if req.SelectionIndex == nil {
		writeError(w, r, &dialogue.ValidationError{Field: "selection_index", Message: "is required"})
		return
	}
	res, err := s.dlg.Answer(r.Context(), req.SessionID, *req.SelectionIndex)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) trace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("trace_id")
	if s.traces == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "tracing disabled", Category: "not_found"})
		return
	}
	t, ok := s.traces.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown trace " + id, Category: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) usage(w http.ResponseWriter, r *http.Request) {
	if s.opts.Usage == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "usage tracking disabled", Category: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Usage.Stats())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, &dialogue.ValidationError{Field: "body", Message: "invalid JSON", Err: err})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := transparency.ClassifyError(err)
	traceID := dialogue.TraceIDFromContext(r.Context())
	if ce.Status >= http.StatusInternalServerError {
		logging.WithRequestID(logging.CategoryAPI, traceID).Error("%s: %v", ce.Category, err)
	}
	writeJSON(w, ce.Status, ErrorResponse{
		Error:       err.Error(),
		Category:    ce.Category.String(),
		TraceID:     traceID,
		Remediation: ce.Remediation,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
