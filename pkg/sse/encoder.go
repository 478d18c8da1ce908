package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

// DoneData is the payload of the sentinel frame that ends an outward stream.
const DoneData = "[DONE]"

var doneFrame = []byte("data: " + DoneData + "\n\n")

// WriteData writes one data frame: "data: <payload>\n\n".
// The payload must not contain newlines.
func WriteData(w io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	_, err := w.Write(frame)
	return err
}

// WriteJSON marshals v and writes it as a single data frame.
func WriteJSON(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal frame: %w", err)
	}
	return WriteData(w, payload)
}

// WriteDone writes the "data: [DONE]" sentinel frame.
func WriteDone(w io.Writer) error {
	_, err := w.Write(doneFrame)
	return err
}
