package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"zonegate/internal/dialogue"
	"zonegate/internal/logging"
)

// TraceHeader carries the correlation id of a request.
const TraceHeader = "X-Trace-ID"

// withTrace assigns every request a trace id, echoes it in the response
// header, threads it into the router through the context and logs the
// request once it completes.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(TraceHeader, traceID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(dialogue.WithTraceID(r.Context(), traceID)))

		log := logging.WithRequestID(logging.CategoryAPI, traceID)
		if rec.status >= http.StatusInternalServerError {
			log.Error("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
			return
		}
		log.Info("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
