package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/sse"
)

// Relay re-frames the upstream event stream in body as outward chunks and
// returns them as a readable byte stream.
//
// The output is: one leading chunk establishing the assistant role with
// empty content, one chunk per meaningful upstream delta carrying only
// that fragment, then on a stop signal a chunk with finish_reason "stop"
// followed by the [DONE] sentinel. A read error, a malformed event or an
// upstream close without a stop signal ends the output with [DONE] alone.
//
// Relay takes ownership of body. Closing the returned reader stops the
// relay and closes body.
func Relay(model string, body io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	r := &relayReader{PipeReader: pr, body: body}

	go func() {
		defer r.closeBody()
		err := relay(pw, model, body)
		pw.CloseWithError(err)
	}()

	return r
}

// relayReader is the outward end of a relay.
type relayReader struct {
	*io.PipeReader
	body      io.Closer
	closeOnce sync.Once
}

// Close stops the relay. It also closes the upstream body so that a relay
// blocked on an idle upstream read is released.
func (r *relayReader) Close() error {
	err := r.PipeReader.Close()
	r.closeBody()
	return err
}

func (r *relayReader) closeBody() {
	r.closeOnce.Do(func() { _ = r.body.Close() })
}

// relay writes the outward frames to w. It returns a non-nil error only
// when w itself fails, which means the consumer went away.
func relay(w io.Writer, model string, body io.Reader) error {
	start := time.Now()
	cw := &chunkWriter{
		w:       w,
		id:      api.NewCompletionID(),
		model:   model,
		created: start.Unix(),
	}

	if err := cw.chunk(api.Delta{Role: api.RoleAssistant}, nil); err != nil {
		return err
	}

	dec := sse.NewDecoder(body)
	deltas := 0
	for ev, err := range dec.All() {
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, context.Canceled) {
				slog.Warn("upstream stream read failed, ending relay", "model", model, "error", err)
			}
			return sse.WriteDone(w)
		}
		debug.Trace("streaming", "upstream event", "data", ev.Data)

		d, err := decodeEvent(ev)
		if errors.Is(err, errUpstreamDone) {
			break
		}
		if err != nil {
			slog.Error("upstream stream decode failed, ending relay", "model", model, "error", err)
			return sse.WriteDone(w)
		}

		if d.meaningful() {
			if err := cw.chunk(api.Delta{Content: d.content}, nil); err != nil {
				return err
			}
			deltas++
		}
		if d.stop {
			if err := cw.chunk(api.Delta{}, api.StopReason()); err != nil {
				return err
			}
			debug.Log("streaming", "relay completed",
				"model", model,
				"deltas", deltas,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return sse.WriteDone(w)
		}
	}

	debug.Log("streaming", "upstream closed without stop signal", "model", model, "deltas", deltas)
	return sse.WriteDone(w)
}

// chunkWriter writes chunks sharing one id, model and creation time.
type chunkWriter struct {
	w       io.Writer
	id      string
	model   string
	created int64
}

func (c *chunkWriter) chunk(d api.Delta, finish *string) error {
	return sse.WriteJSON(c.w, &api.ChatCompletionChunk{
		ID:     c.id,
		Model:  c.model,
		Object: api.ObjectChatCompletionChunk,
		Choices: []api.ChunkChoice{{
			Index:        0,
			Delta:        d,
			FinishReason: finish,
		}},
		Created: c.created,
	})
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
