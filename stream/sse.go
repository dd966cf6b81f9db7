package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"chat-relay-service/models"
)

// SetSSEHeaders prepares a response for Server-Sent Events
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// SSEWriter writes each event as a "data: <json>" frame and flushes it
type SSEWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	SetSSEHeaders(w.Header())
	return &SSEWriter{w: w}
}

func (s *SSEWriter) Emit(event models.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher, ok := s.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// ParseSSE reads data frames from r until EOF or until fn returns false
func ParseSSE(r io.Reader, fn func(models.StreamEvent) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	dispatch := func() (bool, error) {
		if data.Len() == 0 {
			return true, nil
		}
		var event models.StreamEvent
		err := json.Unmarshal([]byte(data.String()), &event)
		data.Reset()
		if err != nil {
			return false, fmt.Errorf("invalid event payload: %w", err)
		}
		return fn(event), nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			cont, err := dispatch()
			if err != nil || !cont {
				return err
			}
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	_, err := dispatch()
	return err
}
