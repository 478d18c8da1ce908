package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/sse"
)

// Accumulate consumes the upstream event stream in body and returns the
// complete answer.
//
// Meaningful deltas are concatenated in order. The answer is returned as
// soon as a stop signal arrives; when the stream ends without one, the
// text received so far is returned instead of an error. A malformed event
// fails with an upstream protocol error and a read failure with an upstream
// transport error. The caller owns body.
func Accumulate(ctx context.Context, model string, body io.Reader) (*api.ChatCompletion, error) {
	start := time.Now()
	dec := sse.NewDecoder(body)

	var (
		content strings.Builder
		id      string
		events  int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			debug.Log("streaming", "upstream closed without stop signal", "events", events, "chars", content.Len())
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, api.NewUpstreamTransportError("stream read failed: "+err.Error(), isTimeout(err)).WithCause(err)
		}
		events++
		debug.Trace("streaming", "upstream event", "data", ev.Data)

		d, err := decodeEvent(ev)
		if errors.Is(err, errUpstreamDone) {
			break
		}
		if err != nil {
			slog.Error("upstream stream decode failed", "model", model, "error", err)
			return nil, err
		}
		if d.id != "" {
			id = d.id
		}
		if d.meaningful() {
			content.WriteString(d.content)
		}
		if d.stop {
			break
		}
	}

	if id == "" {
		id = api.NewCompletionID()
	}
	debug.Log("streaming", "stream accumulated",
		"model", model,
		"events", events,
		"chars", content.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &api.ChatCompletion{
		ID:     id,
		Model:  model,
		Object: api.ObjectChatCompletion,
		Choices: []api.Choice{{
			Index: 0,
			Message: api.AssistantMessage{
				Role:    api.RoleAssistant,
				Content: content.String(),
			},
			FinishReason: api.FinishReasonStop,
		}},
		Usage:   api.PlaceholderUsage(),
		Created: start.Unix(),
	}, nil
}
