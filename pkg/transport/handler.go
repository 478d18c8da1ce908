package transport

import (
	"context"
	"io"

	"github.com/rhuss/tiefsee/pkg/api"
)

// CompletionCreator handles the chat completion operation. The
// implementation receives a validated-shape request and writes the result
// (a complete answer or an event stream) to the ResponseWriter.
type CompletionCreator interface {
	CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error
}

// CompletionCreatorFunc is an adapter that allows using an ordinary function
// as a CompletionCreator.
type CompletionCreatorFunc func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error

// CreateChatCompletion calls f(ctx, req, w).
func (f CompletionCreatorFunc) CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ModelLister returns the models advertised to clients.
type ModelLister interface {
	ListModels(ctx context.Context) (*api.ModelList, error)
}

// TokenChecker reports whether a refresh token is live.
type TokenChecker interface {
	CheckToken(ctx context.Context, token string) (bool, error)
}

// ResponseWriter abstracts synchronous and streaming output for the handler.
// The transport layer creates a ResponseWriter for each request.
//
// WriteCompletion and WriteStream are mutually exclusive on a single writer
// instance; the second call returns an error.
type ResponseWriter interface {
	// WriteCompletion sends a complete JSON answer.
	WriteCompletion(ctx context.Context, completion *api.ChatCompletion) error

	// WriteStream relays an already framed event stream to the client,
	// flushing after every read. The writer takes ownership of stream and
	// closes it when the relay ends or ctx is done.
	WriteStream(ctx context.Context, stream io.ReadCloser) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
