// Package api provides the server-sent events writer for streaming turns.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chatformhq/chatform/internal/models"
)

// sseWriter frames stream chunks as server-sent events. Every chunk goes out
// as one "data: <json>" event followed by a blank line, flushed immediately
// so tokens render as they arrive behind buffering proxies.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter sets the SSE response headers and returns a writer, or an
// error when the underlying ResponseWriter cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteChunk sends one stream chunk to the client.
func (s *sseWriter) WriteChunk(chunk models.StreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		slog.Error("sseWriter.WriteChunk: failed to marshal chunk", "error", err, "type", chunk.Type)
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		slog.Debug("sseWriter.WriteChunk: client write failed", "error", err)
		return
	}
	s.flusher.Flush()
}
