package transport

import "context"

// Middleware wraps a CompletionCreator to add cross-cutting behavior.
// Middleware is applied in order: the first middleware in the chain is
// the outermost wrapper (executes first on the way in, last on the way out).
type Middleware func(CompletionCreator) CompletionCreator

// Chain composes multiple middleware into a single middleware.
// Middleware are applied in order: Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next CompletionCreator) CompletionCreator {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

type credentialsKeyType struct{}

var credentialsKey = credentialsKeyType{}

// ContextWithCredentials returns a new context carrying the refresh tokens
// supplied by the caller.
func ContextWithCredentials(ctx context.Context, tokens []string) context.Context {
	return context.WithValue(ctx, credentialsKey, tokens)
}

// CredentialsFromContext returns the refresh tokens supplied by the caller,
// or nil when the request carried none.
func CredentialsFromContext(ctx context.Context) []string {
	tokens, _ := ctx.Value(credentialsKey).([]string)
	return tokens
}
