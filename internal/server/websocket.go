package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"zonegate/internal/dialogue"
	"zonegate/internal/logging"
	"zonegate/internal/transparency"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame types exchanged over /chat/ws.
const (
	FrameMessage = "message"
	FrameAnswer  = "answer"
	FramePing    = "ping"
	FramePong    = "pong"
	FrameReply   = "reply"
	FrameStage   = "stage"
	FrameError   = "error"
)

// ClientFrame is a message from the client. SessionID may be left empty
// after the first frame; the connection remembers it.
type ClientFrame struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id,omitempty"`
	Message        string `json:"message,omitempty"`
	SelectionIndex *int   `json:"selection_index,omitempty"`
}

// ServerFrame is a message to the client.
type ServerFrame struct {
	Type   string                    `json:"type"`
	Result *dialogue.Result          `json:"result,omitempty"`
	Stage  *transparency.StageRecord `json:"stage,omitempty"`
	Error  *ErrorResponse            `json:"error,omitempty"`
}

func (s *Server) chatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.APIDebug("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logging.APIDebug("websocket opened for session %s", sessionID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = conn.WriteJSON(errorFrame("", &dialogue.ValidationError{Field: "frame", Message: "invalid JSON", Err: err}))
			continue
		}
		if f.SessionID != "" {
			sessionID = f.SessionID
		}
		if err := s.handleFrame(r.Context(), conn, sessionID, f); err != nil {
			break
		}
	}
	logging.APIDebug("websocket closed for session %s", sessionID)
}

// handleFrame runs one client frame. It returns an error only when writing
// to the connection fails.
func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, sessionID string, f ClientFrame) error {
	traceID := uuid.NewString()
	ctx = dialogue.WithTraceID(ctx, traceID)

	var (
		res *dialogue.Result
		err error
	)
	switch strings.ToLower(f.Type) {
	case FramePing:
		return conn.WriteJSON(ServerFrame{Type: FramePong})
	case FrameMessage:
		stop := s.streamStages(conn, traceID)
		res, err = s.dlg.Process(ctx, sessionID, f.Message)
		stop()
	case FrameAnswer:
		if f.SelectionIndex == nil {
			err = &dialogue.ValidationError{Field: "selection_index", Message: "is required"}
			break
		}
		stop := s.streamStages(conn, traceID)
		res, err = s.dlg.Answer(ctx, sessionID, *f.SelectionIndex)
		stop()
	default:
		err = &dialogue.ValidationError{Field: "type", Message: "unknown frame type " + f.Type}
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err != nil {
		return conn.WriteJSON(errorFrame(traceID, err))
	}
	return conn.WriteJSON(ServerFrame{Type: FrameReply, Result: res})
}

// streamStages forwards the stages of traceID to conn while a turn runs.
// The router reports stages on the calling goroutine, so writes never race
// with the reply frame.
func (s *Server) streamStages(conn *websocket.Conn, traceID string) func() {
	if s.traces == nil {
		return func() {}
	}
	return s.traces.AddObserver(transparency.ObserverFunc(func(ev dialogue.StageEvent) {
		if ev.TraceID != traceID {
			return
		}
		rec := transparency.RecordOf(ev)
		_ = conn.WriteJSON(ServerFrame{Type: FrameStage, Stage: &rec})
	}))
}

func errorFrame(traceID string, err error) ServerFrame {
	ce := transparency.ClassifyError(err)
	return ServerFrame{Type: FrameError, Error: &ErrorResponse{
		Error:       err.Error(),
		Category:    ce.Category.String(),
		TraceID:     traceID,
		Remediation: ce.Remediation,
	}}
}
