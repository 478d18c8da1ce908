package stream

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/sse"
)

// errUpstreamDone marks an upstream "[DONE]" payload. It ends the stream
// like a close would.
var errUpstreamDone = errors.New("upstream sent [DONE]")

// delta is the part of an upstream event the gateway cares about.
type delta struct {
	id      string
	content string
	stop    bool
}

// meaningful reports whether the delta carries text worth forwarding.
// The upstream emits empty and single-space deltas as keep-alive noise.
func (d delta) meaningful() bool {
	return d.content != "" && d.content != " "
}

// decodeEvent extracts the delta from one upstream event payload.
func decodeEvent(ev sse.Event) (delta, error) {
	if ev.Data == sse.DoneData {
		return delta{}, errUpstreamDone
	}
	if !gjson.Valid(ev.Data) {
		return delta{}, api.NewUpstreamProtocolError(
			fmt.Sprintf("stream response invalid: %s", debug.Truncate(ev.Data, 200)))
	}

	result := gjson.Parse(ev.Data)
	choice := result.Get("choices.0")
	return delta{
		id:      result.Get("id").String(),
		content: choice.Get("delta.content").String(),
		stop:    choice.Get("finish_reason").String() == api.FinishReasonStop,
	}, nil
}
