package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func collect(t *testing.T, d *Decoder) ([]Event, error) {
	t.Helper()
	var events []Event
	for ev, err := range d.All() {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Event
	}{
		{
			name:  "single data event",
			input: "data: {\"a\":1}\n\n",
			want:  []Event{{Data: `{"a":1}`}},
		},
		{
			name:  "multiple events in order",
			input: "data: one\n\ndata: two\n\ndata: three\n\n",
			want:  []Event{{Data: "one"}, {Data: "two"}, {Data: "three"}},
		},
		{
			name:  "multiline data joined with newline",
			input: "data: first\ndata: second\n\n",
			want:  []Event{{Data: "first\nsecond"}},
		},
		{
			name:  "event type and id",
			input: "event: message\nid: 7\ndata: x\n\ndata: y\n\n",
			want:  []Event{{Type: "message", ID: "7", Data: "x"}, {ID: "7", Data: "y"}},
		},
		{
			name:  "comments and unknown fields are ignored",
			input: ": keep-alive\nfoo: bar\ndata: x\n\n",
			want:  []Event{{Data: "x"}},
		},
		{
			name:  "crlf line endings",
			input: "data: x\r\n\r\ndata: y\r\n\r\n",
			want:  []Event{{Data: "x"}, {Data: "y"}},
		},
		{
			name:  "no space after colon",
			input: "data:x\n\n",
			want:  []Event{{Data: "x"}},
		},
		{
			name:  "only the first space is stripped",
			input: "data:  x\n\n",
			want:  []Event{{Data: " x"}},
		},
		{
			name:  "retry field",
			input: "retry: 3000\ndata: x\n\n",
			want:  []Event{{Data: "x", Retry: 3000}},
		},
		{
			name:  "blank lines without data dispatch nothing",
			input: "\n\nevent: ping\n\ndata: x\n\n",
			want:  []Event{{Data: "x"}},
		},
		{
			name:  "trailing event without blank line",
			input: "data: a\n\ndata: b",
			want:  []Event{{Data: "a"}, {Data: "b"}},
		},
		{
			name:  "empty stream",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, NewDecoder(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events %+v, want %d %+v", len(got), got, len(tt.want), tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("event %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecoderOneByteReads(t *testing.T) {
	input := "data: hello\n\ndata: world\n\n"
	got, err := collect(t, NewDecoder(iotest.OneByteReader(strings.NewReader(input))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Data != "hello" || got[1].Data != "world" {
		t.Errorf("got %+v, want hello, world", got)
	}
}

func TestDecoderNextReturnsEOF(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: x\n\n"))
	if _, err := d.Next(); err != nil {
		t.Fatalf("first Next() error: %v", err)
	}
	for range 2 {
		if _, err := d.Next(); !errors.Is(err, io.EOF) {
			t.Errorf("Next() error = %v, want io.EOF", err)
		}
	}
}

func TestDecoderReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("data: x\n\n"), iotest.ErrReader(boom))

	got, err := collect(t, NewDecoder(r))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if len(got) != 1 || got[0].Data != "x" {
		t.Errorf("events before error = %+v, want one event", got)
	}
}

func TestDecoderLineTooLong(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: " + strings.Repeat("a", 64) + "\n\n"))
	d.maxLineSize = 16

	if _, err := d.Next(); !errors.Is(err, ErrLineTooLong) {
		t.Errorf("Next() error = %v, want ErrLineTooLong", err)
	}
}

func TestDecoderLongLine(t *testing.T) {
	payload := strings.Repeat("z", 10_000)
	d := NewDecoder(strings.NewReader("data: " + payload + "\n\n"))

	ev, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if ev.Data != payload {
		t.Errorf("data length = %d, want %d", len(ev.Data), len(payload))
	}
}

func TestAllStopsEarly(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: a\n\ndata: b\n\ndata: c\n\n"))
	for ev := range d.All() {
		if ev.Data == "a" {
			break
		}
	}
	ev, err := d.Next()
	if err != nil || ev.Data != "b" {
		t.Errorf("Next() after break = %+v, %v, want b", ev, err)
	}
}
