package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ddctx "github.com/corner4world/deepdetect/internal/pkg/context"
)

// ResponseMeta describes how a response was produced.
type ResponseMeta struct {
	RequestID string `json:"request_id,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Timestamp string `json:"timestamp"`
}

// WrappedResponse is the envelope of successful /v1 responses.
type WrappedResponse struct {
	Data json.RawMessage `json:"data"`
	Meta ResponseMeta    `json:"meta"`
}

// bufferedWriter holds the status and body until the handler returns.
type bufferedWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (b *bufferedWriter) WriteHeader(code int) {
	b.status = code
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

var unwrappedPaths = map[string]bool{
	"/v1/health":  true,
	"/v1/version": true,
}

// ResponseWrapperMiddleware wraps successful JSON /v1 responses as
// {"data": ..., "meta": ...}. The body is kept byte for byte, so key order
// survives. Errors and non-JSON bodies pass through unchanged.
func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") || unwrappedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(bw, r)

		body := bytes.TrimSpace(bw.body.Bytes())
		if bw.status >= 400 || len(body) == 0 || !json.Valid(body) {
			w.WriteHeader(bw.status)
			w.Write(bw.body.Bytes())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(bw.status)
		_ = json.NewEncoder(w).Encode(WrappedResponse{
			Data: body,
			Meta: ResponseMeta{
				RequestID: ddctx.GetRequestID(r.Context()),
				LatencyMS: time.Since(start).Milliseconds(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		})
	})
}
