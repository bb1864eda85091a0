package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spherical/doc-assistant/internal/domain"
)

// sseWriter writes stream events as Server-Sent Events, one "event:" and
// one "data:" line per event, flushing after each.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	buf     bytes.Buffer
	enc     *json.Encoder
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s := &sseWriter{w: w, flusher: flusher}
	s.enc = json.NewEncoder(&s.buf)
	s.enc.SetEscapeHTML(false)
	return s, true
}

// Send writes one event. The JSON encoding has no raw newlines, so a single
// data line carries the whole payload.
func (s *sseWriter) Send(ev domain.StreamEvent) error {
	s.buf.Reset()
	if err := s.enc.Encode(newEventFrame(ev)); err != nil {
		return err
	}
	data := bytes.TrimRight(s.buf.Bytes(), "\n")

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
