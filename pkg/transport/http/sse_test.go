package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/tiefsee/pkg/api"
)

// trackingReader records Close calls and can block reads until closed.
type trackingReader struct {
	io.Reader
	block  bool
	closed chan struct{}
}

func newTrackingReader(r io.Reader, block bool) *trackingReader {
	return &trackingReader{Reader: r, block: block, closed: make(chan struct{})}
}

func (r *trackingReader) Read(p []byte) (int, error) {
	if r.block {
		<-r.closed
		return 0, io.ErrClosedPipe
	}
	return r.Reader.Read(p)
}

func (r *trackingReader) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

func (r *trackingReader) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func TestWriteCompletionJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	completion := &api.ChatCompletion{ID: "chatcmpl-abc", Model: "deepseek-chat", Object: api.ObjectChatCompletion}
	if err := rw.WriteCompletion(context.Background(), completion); err != nil {
		t.Fatalf("WriteCompletion error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	var got api.ChatCompletion
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.ID != "chatcmpl-abc" {
		t.Errorf("ID = %q", got.ID)
	}
	if rw.hasStartedStreaming() {
		t.Error("JSON answer must not count as streaming")
	}
}

func TestWriteStreamRelaysAndCloses(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	payload := "data: {\"a\":1}\n\ndata: [DONE]\n\n"
	stream := newTrackingReader(strings.NewReader(payload), false)
	if err := rw.WriteStream(context.Background(), stream); err != nil {
		t.Fatalf("WriteStream error: %v", err)
	}

	if rec.Body.String() != payload {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Error("expected proxy buffering to be disabled")
	}
	if !stream.isClosed() {
		t.Error("expected the stream to be closed")
	}
	if !rw.hasStartedStreaming() {
		t.Error("expected streaming state")
	}
}

func TestWriteStreamClosesOnContextCancel(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)
	stream := newTrackingReader(nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- rw.WriteStream(ctx, stream) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean return on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
	if !stream.isClosed() {
		t.Error("expected the stream to be closed")
	}
}

func TestWriteStreamReadError(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	boom := errors.New("boom")
	stream := io.NopCloser(io.MultiReader(strings.NewReader("data: x\n\n"), &errReader{boom}))
	err := rw.WriteStream(context.Background(), stream)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if rec.Body.String() != "data: x\n\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

func TestWriterIsSingleUse(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	if err := rw.WriteCompletion(context.Background(), &api.ChatCompletion{}); err != nil {
		t.Fatal(err)
	}
	if err := rw.WriteCompletion(context.Background(), &api.ChatCompletion{}); err == nil {
		t.Error("expected error on second WriteCompletion")
	}

	stream := newTrackingReader(strings.NewReader(""), false)
	if err := rw.WriteStream(context.Background(), stream); err == nil {
		t.Error("expected error on WriteStream after WriteCompletion")
	}
	if !stream.isClosed() {
		t.Error("a rejected stream must still be closed")
	}
}
