// Package api defines the outward protocol types for the tiefsee gateway.
//
// The types mirror the OpenAI Chat Completions wire format closely enough
// for existing client libraries to talk to the gateway unchanged:
//   - [ChatCompletionRequest]: Client request (model, messages, stream flag)
//   - [ChatCompletion]: Synchronous answer object
//   - [ChatCompletionChunk]: One frame of the incremental (SSE) answer
//   - [APIError]: Structured error with type, stable numeric code, and message
//
// Message content may be a plain string or a list of typed parts; only
// text parts carry meaning for the upstream.
//
// The package performs no I/O.
package api
