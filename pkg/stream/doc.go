// Package stream turns the upstream event stream into outward answers.
//
// Accumulate drains the stream into a single synchronous chat.completion.
// Relay re-frames it incrementally as chat.completion.chunk frames and
// always terminates the outward stream with the [DONE] sentinel, whatever
// happens upstream. Fallback produces the one-chunk notice sent when the
// upstream returns no event stream at all.
package stream
