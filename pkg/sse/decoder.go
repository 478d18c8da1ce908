// Package sse decodes server-sent event streams.
//
// The Decoder is pull-based: each call to Next reads just enough of the
// underlying reader to produce one event, so a slow consumer applies
// backpressure to the producer. It knows nothing about HTTP; any
// io.Reader carrying text/event-stream framing will do.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
	"strconv"
	"strings"
)

// DefaultMaxLineSize bounds a single line of the stream.
const DefaultMaxLineSize = 1 << 20

// ErrLineTooLong is returned when a line exceeds the decoder's limit.
var ErrLineTooLong = errors.New("sse: line too long")

// Event is one dispatched server-sent event.
type Event struct {
	// Type is the value of the last "event:" field, empty for the default type.
	Type string
	// ID is the last event ID seen on the stream, carried across events.
	ID string
	// Data is the concatenation of all "data:" fields joined by "\n".
	Data string
	// Retry is the reconnection delay in milliseconds, 0 when absent.
	Retry int
}

// Decoder reads events from a text/event-stream body.
type Decoder struct {
	r           *bufio.Reader
	maxLineSize int
	lastID      string
	err         error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:           bufio.NewReader(r),
		maxLineSize: DefaultMaxLineSize,
	}
}

// Next returns the next event. It returns io.EOF once the stream is
// exhausted; any other error is a read failure. After an error every
// further call returns the same error.
//
// A final event that is not followed by a blank line is still dispatched
// when the stream ends.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return Event{}, d.err
	}

	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)

	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && hasData {
				// Dispatch the trailing event; EOF is reported on the next call.
				d.err = io.EOF
				ev.ID = d.lastID
				ev.Data = data.String()
				return ev, nil
			}
			d.err = err
			return Event{}, err
		}

		if line == "" {
			if !hasData {
				// Blank line with nothing buffered; reset the pending type.
				ev = Event{}
				continue
			}
			ev.ID = d.lastID
			ev.Data = data.String()
			return ev, nil
		}

		if line[0] == ':' {
			continue // comment
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				ev.Retry = n
			}
		}
	}
}

// All returns an iterator over the remaining events. Iteration stops
// after io.EOF, which is not yielded; any other error is yielded once as
// the final element.
func (d *Decoder) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// readLine returns the next line without its terminator. A final line
// without a terminator is returned before io.EOF.
func (d *Decoder) readLine() (string, error) {
	var buf []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		if len(buf)+len(chunk) > d.maxLineSize {
			return "", ErrLineTooLong
		}
		buf = append(buf, chunk...)

		switch {
		case err == nil:
			return string(trimEOL(buf)), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0:
			// Unterminated last line; the next read reports EOF.
			return string(trimEOL(buf)), nil
		default:
			return "", err
		}
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
