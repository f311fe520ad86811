package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseWriter frames events as "event: <type>\ndata: <json>\n\n". Headers are sent
// with the first event so that errors raised before it can still be answered as JSON.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming is not supported by response writer")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) Started() bool {
	return s.started
}

func (s *sseWriter) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if !s.started {
		s.start()
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) start() {
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(s.w).SetWriteDeadline(time.Time{})

	header := s.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}
