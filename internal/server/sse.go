package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// DoneMarker ends every progress stream.
const DoneMarker = "DONE"

// SSEWriter writes progress messages as Server-Sent Events.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	broken  bool
}

// NewSSEWriter sets the stream headers on w.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteMessage sends one `data: {"message": ...}` frame. After the first write error the stream
// is considered gone and further messages are dropped.
func (s *SSEWriter) WriteMessage(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return nil
	}
	data, err := json.Marshal(map[string]string{"message": msg})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.broken = true
		return err
	}
	s.flusher.Flush()
	return nil
}

// Progress adapts the writer to a fire-and-forget progress callback.
func (s *SSEWriter) Progress() func(string) {
	return func(msg string) { _ = s.WriteMessage(msg) }
}

// WriteDone sends the completion marker.
func (s *SSEWriter) WriteDone() {
	_ = s.WriteMessage(DoneMarker)
}
