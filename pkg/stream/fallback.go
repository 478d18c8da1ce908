package stream

import (
	"bytes"
	"io"
	"time"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/sse"
)

// FallbackNotice is the content of the degraded-service chunk.
const FallbackNotice = "Service is temporarily unavailable, third-party response error"

// FallbackChunk returns the single chunk sent when the upstream does not
// provide an event stream.
func FallbackChunk(model string) *api.ChatCompletionChunk {
	return &api.ChatCompletionChunk{
		ID:     api.NewCompletionID(),
		Model:  model,
		Object: api.ObjectChatCompletionChunk,
		Choices: []api.ChunkChoice{{
			Index: 0,
			Delta: api.Delta{
				Role:    api.RoleAssistant,
				Content: FallbackNotice,
			},
			FinishReason: api.StopReason(),
		}},
		Usage:   api.PlaceholderUsage(),
		Created: time.Now().Unix(),
	}
}

// Fallback returns a complete outward stream made of the fallback chunk
// and the [DONE] sentinel.
func Fallback(model string) io.ReadCloser {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail and the chunk always marshals.
	_ = sse.WriteJSON(&buf, FallbackChunk(model))
	_ = sse.WriteDone(&buf)
	return io.NopCloser(&buf)
}
