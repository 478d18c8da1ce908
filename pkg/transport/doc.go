// Package transport defines the handler interfaces and middleware chain for
// the tiefsee HTTP/SSE transport layer.
//
// The transport layer bridges OpenAI-compatible clients and the gateway
// engine. It deserializes incoming requests into the protocol types defined
// in pkg/api, dispatches them for processing, and serializes the result
// back to the client either as a complete JSON answer or as an SSE relay.
//
// # Handler Interfaces
//
//   - CompletionCreator handles POST /v1/chat/completions.
//   - ModelLister serves the advertised model list.
//   - TokenChecker reports whether a refresh token is still accepted upstream.
//
// The ResponseWriter interface abstracts the two output shapes so the
// engine never touches net/http directly.
//
// # Middleware
//
// The middleware chain wraps CompletionCreator with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
package transport
