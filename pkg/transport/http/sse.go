package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/transport"
)

// relayBufferSize is the read size used when relaying an event stream.
const relayBufferSize = 32 << 10

// writerState tracks the state of a ResponseWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // WriteStream has committed SSE headers
	writerCompleted                    // Relay finished or WriteCompletion called
)

// sseResponseWriter implements transport.ResponseWriter for HTTP responses.
// It handles both synchronous (JSON) and streaming (SSE) output.
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu       sync.Mutex
	state    writerState
	streamed bool
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

func newSSEResponseWriter(w http.ResponseWriter) *sseResponseWriter {
	return &sseResponseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteCompletion sends a complete JSON answer.
// This is mutually exclusive with WriteStream.
func (s *sseResponseWriter) WriteCompletion(_ context.Context, completion *api.ChatCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != writerIdle {
		return errors.New("cannot write completion: writer already used")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(completion); err != nil {
		return fmt.Errorf("failed to encode completion: %w", err)
	}
	return nil
}

// WriteStream commits the SSE headers and copies stream to the client,
// flushing after every read. The stream is closed when the copy ends or
// when ctx is done, whichever comes first. A client that goes away ends
// the relay without error.
func (s *sseResponseWriter) WriteStream(ctx context.Context, stream io.ReadCloser) error {
	defer stream.Close()

	s.mu.Lock()
	if s.state != writerIdle {
		s.mu.Unlock()
		return errors.New("cannot write stream: writer already used")
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.state = writerStreaming
	s.streamed = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state = writerCompleted
		s.mu.Unlock()
	}()

	// Unblocks a pending Read once the client is gone.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	buf := make([]byte, relayBufferSize)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, err := s.w.Write(buf[:n]); err != nil {
				debug.Log("transport", "client write failed, ending relay", "error", err)
				return nil
			}
			if err := s.rc.Flush(); err != nil {
				debug.Log("transport", "client flush failed, ending relay", "error", err)
				return nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relaying stream: %w", readErr)
		}
	}
}

// Flush ensures buffered data is sent to the client.
func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// hasStartedStreaming reports whether SSE headers have been committed.
// After that point errors can no longer be reported as JSON.
func (s *sseResponseWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamed
}

// hasWritten reports whether any response has been committed.
func (s *sseResponseWriter) hasWritten() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}
