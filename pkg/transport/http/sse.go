package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/byok/pkg/api"
)

// SSE event names.
const (
	eventChunk = "chunk"
	eventError = "error"
)

// writerState tracks the state of an sseWriter.
type writerState int

const (
	writerIdle      writerState = iota // no writes yet
	writerStreaming                    // at least one event sent
	writerCompleted                    // [DONE] sent
)

// sseWriter writes completion chunks as server-sent events:
//
//	event: chunk
//	data: {json}
//
// A failure is sent as an error event. Both a Done chunk and an error
// event are followed by data: [DONE] and end the stream.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// WriteChunk sends one chunk event.
func (s *sseWriter) WriteChunk(chunk api.StreamChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeEvent(eventChunk, chunk); err != nil {
		return err
	}
	if chunk.Done {
		return s.writeDone()
	}
	return nil
}

// WriteError sends an error event and ends the stream.
func (s *sseWriter) WriteError(apiErr *api.APIError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeEvent(eventError, api.ErrorResponse{Error: apiErr}); err != nil {
		return err
	}
	return s.writeDone()
}

// Started reports whether any event was written.
func (s *sseWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}

// Completed reports whether the terminating [DONE] was written.
func (s *sseWriter) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerCompleted
}

func (s *sseWriter) writeEvent(name string, v any) error {
	if s.state == writerCompleted {
		return errors.New("cannot write event: stream is completed")
	}

	if s.state == writerIdle {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.state = writerStreaming
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

func (s *sseWriter) writeDone() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write [DONE]: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush [DONE]: %w", err)
	}
	s.state = writerCompleted
	return nil
}
